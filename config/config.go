package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config carries every tunable the service needs. It is loaded once in main
// and handed to each component at construction time; nothing reads the
// environment after startup.
type Config struct {
	Port    string `mapstructure:"PORT"`
	BaseURL string `mapstructure:"BASE"`

	TempDir   string `mapstructure:"TEMP_DIR"`
	OutputDir string `mapstructure:"OUTPUT_DIR"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JobTTL bounds how long job state and job files are kept around.
	JobTTL time.Duration `mapstructure:"JOB_TTL"`

	MaxUploadSize int64 `mapstructure:"MAX_UPLOAD_SIZE"`
	MaxTextLength int   `mapstructure:"MAX_TEXT_LENGTH"`

	FFmpegBin   string `mapstructure:"FFMPEG_BIN"`
	FFprobeBin  string `mapstructure:"FFPROBE_BIN"`
	GifsicleBin string `mapstructure:"GIFSICLE_BIN"`

	TTSBin       string `mapstructure:"TTS_BIN"`
	TTSVoice     string `mapstructure:"TTS_VOICE"`
	TTSExtraArgs string `mapstructure:"TTS_EXTRA_ARGS"`

	PythonBin          string `mapstructure:"PYTHON_BIN"`
	Wav2LipDir         string `mapstructure:"WAV2LIP_DIR"`
	ModelPath          string `mapstructure:"MODEL_PATH"`
	InferenceExtraArgs string `mapstructure:"INFERENCE_EXTRA_ARGS"`

	CascadePath    string `mapstructure:"CASCADE_PATH"`
	FaceScanFrames int    `mapstructure:"FACE_SCAN_FRAMES"`
	UseFaceBoxHint bool   `mapstructure:"USE_FACE_BOX_HINT"`

	// MaxAudioVideoRatio rejects speech longer than ratio x clip length.
	MaxAudioVideoRatio float64 `mapstructure:"MAX_AUDIO_VIDEO_RATIO"`
	// TrimToAudio switches the short-audio policy from padding the audio up
	// to the clip length to trimming the clip down to the audio length.
	TrimToAudio bool    `mapstructure:"TRIM_TO_AUDIO"`
	GIFMaxFPS   float64 `mapstructure:"GIF_MAX_FPS"`

	JobTimeout     time.Duration `mapstructure:"JOB_TIMEOUT"`
	MaxConcurrency int           `mapstructure:"MAX_CONCURRENCY"`

	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`

	AuthEnable bool   `mapstructure:"AUTH_ENABLE"`
	AuthKey    string `mapstructure:"AUTH_KEY"`
}

// stringToDurationHookFunc parses Go duration strings ("12m3s").
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable size strings ("50MB").
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("TEMP_DIR", "./temp")
	vp.SetDefault("OUTPUT_DIR", "./outputs")
	vp.SetDefault("REDIS_ADDR", "localhost:6379")
	vp.SetDefault("REDIS_PASSWORD", "")
	vp.SetDefault("REDIS_DB", 0)
	vp.SetDefault("JOB_TTL", "24h")
	vp.SetDefault("MAX_UPLOAD_SIZE", "50MB")
	vp.SetDefault("MAX_TEXT_LENGTH", 200)
	vp.SetDefault("FFMPEG_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("GIFSICLE_BIN", "gifsicle")
	vp.SetDefault("TTS_BIN", "edge-tts")
	vp.SetDefault("TTS_VOICE", "en-US-GuyNeural")
	vp.SetDefault("TTS_EXTRA_ARGS", "")
	vp.SetDefault("PYTHON_BIN", "python3")
	vp.SetDefault("WAV2LIP_DIR", "./wav2lip")
	vp.SetDefault("MODEL_PATH", "./models/wav2lip_gan.pth")
	vp.SetDefault("INFERENCE_EXTRA_ARGS", "")
	vp.SetDefault("CASCADE_PATH", "./models/facefinder")
	vp.SetDefault("FACE_SCAN_FRAMES", 10)
	vp.SetDefault("USE_FACE_BOX_HINT", true)
	vp.SetDefault("MAX_AUDIO_VIDEO_RATIO", 1.5)
	vp.SetDefault("TRIM_TO_AUDIO", false)
	vp.SetDefault("GIF_MAX_FPS", 30.0)
	vp.SetDefault("JOB_TIMEOUT", "15m")
	vp.SetDefault("MAX_CONCURRENCY", 1)
	vp.SetDefault("THROTTLE_CPU", 50.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")

	// Load from config file
	vp.SetConfigName("memesync_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/memesync/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Load from environment variables
	vp.SetEnvPrefix("MEMESYNC")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
