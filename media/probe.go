package media

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// fallbackFPS is assumed when a frame rate cannot be determined at all.
const fallbackFPS = 10.0

// gifFPSClamp: GIFs frequently report r_frame_rate as 100/1, which is a
// metadata artifact rather than a real rate. Anything above 50 is clamped.
const gifFPSClamp = 50.0

// Info holds the stream metadata later stages need.
type Info struct {
	FPS        float64
	FrameCount int
	Duration   float64
}

// Prober measures media files via ffprobe.
type Prober struct {
	bin    string
	runner Runner
}

func NewProber(bin string, runner Runner) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin, runner: runner}
}

// probeStreams mirrors the subset of ffprobe -show_streams/-show_format
// output we consume.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// Probe returns frame rate, frame count and duration for a video file,
// filling gaps from whatever metadata is present.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	raw, err := p.probeJSON(ctx, path)
	if err != nil {
		return Info{}, err
	}
	return parseVideoInfo(raw)
}

// GIFFrameRate derives an average frame rate from GIF frame delays, clamping
// implausibly high reported rates.
func (p *Prober) GIFFrameRate(ctx context.Context, path string) (float64, error) {
	raw, err := p.probeJSON(ctx, path)
	if err != nil {
		return 0, err
	}
	return parseGIFFrameRate(raw), nil
}

// Duration returns the container-level duration in seconds. Audio files have
// no video stream, so this reads format metadata. A missing duration is
// reported as 0 rather than an error; callers treat 0 as "unknown".
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, p.bin,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, nil
	}
	return d, nil
}

func (p *Prober) probeJSON(ctx context.Context, path string) ([]byte, error) {
	out, err := p.runner.Run(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func parseVideoInfo(raw []byte) (Info, error) {
	var data probeOutput
	if err := json.Unmarshal(raw, &data); err != nil {
		return Info{}, errors.Wrap(err, "decoding ffprobe output")
	}

	for _, st := range data.Streams {
		if st.CodecType != "video" {
			continue
		}

		fps := parseRate(st.RFrameRate)
		if fps <= 0 {
			fps = parseRate(st.AvgFrameRate)
		}
		if fps <= 0 {
			fps = fallbackFPS
		}

		duration := parseSeconds(st.Duration)
		if duration <= 0 {
			duration = parseSeconds(data.Format.Duration)
		}

		frames := 0
		if st.NBFrames != "" {
			frames, _ = strconv.Atoi(st.NBFrames)
		}
		if frames <= 0 && duration > 0 {
			frames = int(duration * fps)
		}
		if duration <= 0 && frames > 0 && fps > 0 {
			duration = float64(frames) / fps
		}

		return Info{FPS: fps, FrameCount: frames, Duration: duration}, nil
	}

	return Info{}, errors.New("no video stream found in file")
}

func parseGIFFrameRate(raw []byte) float64 {
	var data probeOutput
	if err := json.Unmarshal(raw, &data); err != nil {
		return fallbackFPS
	}

	for _, st := range data.Streams {
		if st.CodecType != "video" {
			continue
		}
		if fps := parseRate(st.RFrameRate); fps > 0 {
			if fps > gifFPSClamp {
				return fallbackFPS
			}
			return fps
		}
	}

	// Fall back to avg_frame_rate, capped at a usable rate.
	for _, st := range data.Streams {
		if st.CodecType != "video" {
			continue
		}
		if fps := parseRate(st.AvgFrameRate); fps > 0 {
			if fps > 30 {
				return 30
			}
			return fps
		}
	}

	return fallbackFPS
}

// parseRate parses ffprobe rational rates like "25/1". Returns 0 when the
// value is absent or malformed.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0
	}
	d, err := strconv.Atoi(den)
	if err != nil || d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func parseSeconds(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return d
}
