package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"memesync/face"
	"memesync/media"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// fakeProbe serves canned metadata keyed by path.
type fakeProbe struct {
	info      media.Info
	infoErr   error
	gifFPS    float64
	gifErr    error
	durations map[string]float64
}

func (f *fakeProbe) Probe(ctx context.Context, path string) (media.Info, error) {
	return f.info, f.infoErr
}

func (f *fakeProbe) GIFFrameRate(ctx context.Context, path string) (float64, error) {
	return f.gifFPS, f.gifErr
}

func (f *fakeProbe) Duration(ctx context.Context, path string) (float64, error) {
	return f.durations[filepath.Base(path)], nil
}

// fakeTranscoder records calls and fabricates output artifacts.
type fakeTranscoder struct {
	calls []string
	fail  map[string]error
}

func (f *fakeTranscoder) call(name string, outPath string) error {
	f.calls = append(f.calls, name)
	if err := f.fail[name]; err != nil {
		return err
	}
	if outPath != "" {
		return os.WriteFile(outPath, []byte(name), 0o644)
	}
	return nil
}

func (f *fakeTranscoder) GIFToMP4(ctx context.Context, in, out string, fps float64) error {
	return f.call("gif_to_mp4", out)
}

func (f *fakeTranscoder) ResampleWAV(ctx context.Context, in, out string) error {
	return f.call("resample_wav", out)
}

func (f *fakeTranscoder) PadAudio(ctx context.Context, in, out string, target float64) error {
	f.calls = append(f.calls, fmt.Sprintf("pad_audio:%g", target))
	if err := f.fail["pad_audio"]; err != nil {
		return err
	}
	return os.WriteFile(out, []byte("padded"), 0o644)
}

func (f *fakeTranscoder) TrimVideo(ctx context.Context, in, out string, target float64) error {
	f.calls = append(f.calls, fmt.Sprintf("trim_video:%g", target))
	if err := f.fail["trim_video"]; err != nil {
		return err
	}
	return os.WriteFile(out, []byte("trimmed"), 0o644)
}

func (f *fakeTranscoder) ExtractFrames(ctx context.Context, in, pattern string, n int) error {
	f.calls = append(f.calls, "extract_frames")
	if err := f.fail["extract_frames"]; err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte("frame"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTranscoder) GeneratePalette(ctx context.Context, in, palette string, fps float64) error {
	return f.call("generate_palette", palette)
}

func (f *fakeTranscoder) RenderGIF(ctx context.Context, in, palette, out string, fps float64) error {
	f.calls = append(f.calls, fmt.Sprintf("render_gif:%g", fps))
	if err := f.fail["render_gif"]; err != nil {
		return err
	}
	return os.WriteFile(out, []byte("gif"), 0o644)
}

// fakeScanner reports a fixed detection outcome.
type fakeScanner struct {
	box    face.Box
	found  bool
	err    error
	frames []string
}

func (f *fakeScanner) ScanFrames(paths []string) (face.Box, bool, error) {
	f.frames = paths
	return f.box, f.found, f.err
}

// fakeRunner records external invocations.
type fakeRunner struct {
	calls  [][]string
	output string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

// fakeOptimizer is the optional compression pass.
type fakeOptimizer struct {
	err    error
	called bool
}

func (f *fakeOptimizer) Optimize(ctx context.Context, in, out string) error {
	f.called = true
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte("optimized"), 0o644)
}

func writeTempFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}
	return path
}
