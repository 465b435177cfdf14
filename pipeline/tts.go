package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"memesync/speech"
)

const stageTTS = "speech synthesis"

// SpeechResult is the normalized synthesis output for one run.
type SpeechResult struct {
	WAVPath  string
	Duration float64
}

// SpeechStage turns text into the 16 kHz mono WAV the inference engine
// expects, whatever format the synthesizer natively emits.
type SpeechStage struct {
	synth  speech.Synthesizer
	ffmpeg Transcoder
	probe  Prober
	voice  string
	log    *logrus.Logger
}

func NewSpeechStage(synth speech.Synthesizer, ffmpeg Transcoder, probe Prober, voice string, log *logrus.Logger) *SpeechStage {
	return &SpeechStage{synth: synth, ffmpeg: ffmpeg, probe: probe, voice: voice, log: log}
}

func (s *SpeechStage) Run(ctx context.Context, text, workDir string) (SpeechResult, error) {
	if strings.TrimSpace(text) == "" {
		return SpeechResult{}, failure(stageTTS, ErrEmptyText, "text cannot be empty")
	}

	rawPath := filepath.Join(workDir, "speech_raw.mp3")
	defer os.Remove(rawPath)

	s.log.WithField("voice", s.voice).Info("synthesizing speech")
	if err := s.synth.Synthesize(ctx, text, s.voice, rawPath); err != nil {
		return SpeechResult{}, failure(stageTTS, ErrSynthesisFailed, "synthesizer failed: %v", err)
	}

	if fi, err := os.Stat(rawPath); err != nil || fi.Size() == 0 {
		return SpeechResult{}, failure(stageTTS, ErrSynthesisFailed, "synthesizer produced no audio")
	}

	wavPath := filepath.Join(workDir, "speech.wav")
	if err := s.ffmpeg.ResampleWAV(ctx, rawPath, wavPath); err != nil {
		return SpeechResult{}, failure(stageTTS, err, "converting speech to 16 kHz mono WAV: %v", err)
	}

	duration, err := s.probe.Duration(ctx, wavPath)
	if err != nil {
		return SpeechResult{}, failure(stageTTS, err, "measuring speech duration: %v", err)
	}
	s.log.WithField("duration", duration).Info("speech synthesized")

	return SpeechResult{WAVPath: wavPath, Duration: duration}, nil
}
