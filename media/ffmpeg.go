package media

import (
	"context"
	"fmt"
)

// FFmpeg wraps the transcode operations the pipeline needs. Every method is
// a blocking external invocation; timeouts come from the caller's context.
type FFmpeg struct {
	bin    string
	runner Runner
}

func NewFFmpeg(bin string, runner Runner) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, runner: runner}
}

// GIFToMP4 converts a GIF into an H.264 MP4 at the given frame rate.
// yuv420p keeps the output playable by downstream tooling.
func (f *FFmpeg) GIFToMP4(ctx context.Context, in, out string, fps float64) error {
	_, err := f.runner.Run(ctx, f.bin,
		"-y",
		"-i", in,
		"-vf", fmt.Sprintf("fps=%g", fps),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		out,
	)
	return err
}

// ResampleWAV converts any audio input to 16 kHz mono WAV, the layout the
// inference engine expects.
func (f *FFmpeg) ResampleWAV(ctx context.Context, in, out string) error {
	_, err := f.runner.Run(ctx, f.bin,
		"-y",
		"-i", in,
		"-ar", "16000",
		"-ac", "1",
		out,
	)
	return err
}

// PadAudio appends trailing silence so the output lasts exactly target
// seconds.
func (f *FFmpeg) PadAudio(ctx context.Context, in, out string, target float64) error {
	_, err := f.runner.Run(ctx, f.bin,
		"-y",
		"-i", in,
		"-af", "apad",
		"-t", fmt.Sprintf("%g", target),
		out,
	)
	return err
}

// TrimVideo re-encodes the input cut down to target seconds.
func (f *FFmpeg) TrimVideo(ctx context.Context, in, out string, target float64) error {
	_, err := f.runner.Run(ctx, f.bin,
		"-y",
		"-i", in,
		"-t", fmt.Sprintf("%g", target),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		out,
	)
	return err
}

// ExtractFrames writes the first n frames of a video as images following
// pattern (e.g. "frame_%02d.png").
func (f *FFmpeg) ExtractFrames(ctx context.Context, in, pattern string, n int) error {
	_, err := f.runner.Run(ctx, f.bin,
		"-y",
		"-i", in,
		"-frames:v", fmt.Sprintf("%d", n),
		pattern,
	)
	return err
}

// GeneratePalette runs the first pass of the GIF encode: build a 256-color
// palette tuned to this clip's moving regions.
func (f *FFmpeg) GeneratePalette(ctx context.Context, in, palette string, fps float64) error {
	_, err := f.runner.Run(ctx, f.bin,
		"-y",
		"-i", in,
		"-vf", fmt.Sprintf("fps=%g,scale=480:-1:flags=lanczos,palettegen=stats_mode=diff", fps),
		palette,
	)
	return err
}

// RenderGIF runs the second pass: render the GIF using the clip-specific
// palette with ordered dithering.
func (f *FFmpeg) RenderGIF(ctx context.Context, in, palette, out string, fps float64) error {
	_, err := f.runner.Run(ctx, f.bin,
		"-y",
		"-i", in,
		"-i", palette,
		"-lavfi", fmt.Sprintf(
			"fps=%g,scale=480:-1:flags=lanczos [x]; [x][1:v] paletteuse=dither=bayer:bayer_scale=5:diff_mode=rectangle",
			fps,
		),
		out,
	)
	return err
}
