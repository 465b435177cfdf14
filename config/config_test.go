package config_test // Use an external test package

import (
	"testing"
	"time"

	"memesync/config"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		// Ensure no env vars are lingering from other tests
		t.Setenv("MEMESYNC_PORT", "")
		t.Setenv("MEMESYNC_MAX_CONCURRENCY", "")
		t.Setenv("MEMESYNC_JOB_TIMEOUT", "")
		t.Setenv("MEMESYNC_MAX_UPLOAD_SIZE", "")
		t.Setenv("MEMESYNC_TRIM_TO_AUDIO", "")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 1, cfg.MaxConcurrency)
		assert.Equal(t, "ffmpeg", cfg.FFmpegBin)
		assert.Equal(t, "edge-tts", cfg.TTSBin)
		assert.Equal(t, "en-US-GuyNeural", cfg.TTSVoice)
		assert.Equal(t, 15*time.Minute, cfg.JobTimeout)
		assert.Equal(t, 24*time.Hour, cfg.JobTTL)
		assert.Equal(t, int64(50*1024*1024), cfg.MaxUploadSize)
		assert.Equal(t, 200, cfg.MaxTextLength)
		assert.Equal(t, 1.5, cfg.MaxAudioVideoRatio)
		assert.Equal(t, 30.0, cfg.GIFMaxFPS)
		assert.Equal(t, 10, cfg.FaceScanFrames)
		assert.False(t, cfg.TrimToAudio)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("MEMESYNC_PORT", "9999")
		t.Setenv("MEMESYNC_MAX_CONCURRENCY", "4")
		t.Setenv("MEMESYNC_MAX_UPLOAD_SIZE", "20MB")
		t.Setenv("MEMESYNC_TTS_VOICE", "en-GB-RyanNeural")
		t.Setenv("MEMESYNC_TRIM_TO_AUDIO", "true")
		t.Setenv("MEMESYNC_MAX_AUDIO_VIDEO_RATIO", "2.0")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 4, cfg.MaxConcurrency)
		assert.Equal(t, int64(20*1024*1024), cfg.MaxUploadSize)
		assert.Equal(t, "en-GB-RyanNeural", cfg.TTSVoice)
		assert.True(t, cfg.TrimToAudio)
		assert.Equal(t, 2.0, cfg.MaxAudioVideoRatio)
	})
}
