package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"memesync/face"
	"memesync/media"
)

const stagePreprocess = "preprocess"

// Prober measures media metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
	GIFFrameRate(ctx context.Context, path string) (float64, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// Transcoder is the ffmpeg capability surface the stages consume.
type Transcoder interface {
	GIFToMP4(ctx context.Context, in, out string, fps float64) error
	ResampleWAV(ctx context.Context, in, out string) error
	PadAudio(ctx context.Context, in, out string, target float64) error
	TrimVideo(ctx context.Context, in, out string, target float64) error
	ExtractFrames(ctx context.Context, in, pattern string, n int) error
	GeneratePalette(ctx context.Context, in, palette string, fps float64) error
	RenderGIF(ctx context.Context, in, palette, out string, fps float64) error
}

// FaceScanner checks extracted frames for a face.
type FaceScanner interface {
	ScanFrames(paths []string) (face.Box, bool, error)
}

// PreprocessResult is handed to the later stages of the same run.
type PreprocessResult struct {
	MP4Path      string
	FPS          float64
	FrameCount   int
	Duration     float64
	FaceBox      face.Box
	FaceBoxFound bool
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".avi":  true,
}

// Preprocessor normalizes an upload into a canonical MP4 and enforces the
// face precondition before any expensive stage runs.
type Preprocessor struct {
	probe      Prober
	ffmpeg     Transcoder
	faces      FaceScanner
	scanFrames int
	log        *logrus.Logger
}

func NewPreprocessor(probe Prober, ffmpeg Transcoder, faces FaceScanner, scanFrames int, log *logrus.Logger) *Preprocessor {
	if scanFrames <= 0 {
		scanFrames = 10
	}
	return &Preprocessor{probe: probe, ffmpeg: ffmpeg, faces: faces, scanFrames: scanFrames, log: log}
}

func (p *Preprocessor) Run(ctx context.Context, inputPath, workDir string) (PreprocessResult, error) {
	suffix := strings.ToLower(filepath.Ext(inputPath))
	mp4Path := filepath.Join(workDir, "input.mp4")

	switch {
	case suffix == ".gif":
		fps, err := p.probe.GIFFrameRate(ctx, inputPath)
		if err != nil {
			return PreprocessResult{}, failure(stagePreprocess, err, "reading GIF metadata: %v", err)
		}
		p.log.WithFields(logrus.Fields{"fps": fps}).Info("converting GIF to MP4")
		if err := p.ffmpeg.GIFToMP4(ctx, inputPath, mp4Path, fps); err != nil {
			return PreprocessResult{}, failure(stagePreprocess, err, "converting GIF to video: %v", err)
		}
	case videoExtensions[suffix]:
		if err := copyFile(inputPath, mp4Path); err != nil {
			return PreprocessResult{}, failure(stagePreprocess, err, "copying upload: %v", err)
		}
	default:
		return PreprocessResult{}, failure(stagePreprocess, ErrUnsupportedInput,
			"unsupported file type %q; upload a GIF or MP4", suffix)
	}

	info, err := p.probe.Probe(ctx, mp4Path)
	if err != nil {
		return PreprocessResult{}, failure(stagePreprocess, err, "reading video metadata: %v", err)
	}

	frames, err := p.extractFramePrefix(ctx, mp4Path, workDir)
	if err != nil {
		return PreprocessResult{}, failure(stagePreprocess, err, "extracting frames for face detection: %v", err)
	}

	box, found, err := p.faces.ScanFrames(frames)
	if err != nil {
		return PreprocessResult{}, failure(stagePreprocess, err, "face detection: %v", err)
	}
	if !found {
		return PreprocessResult{}, failure(stagePreprocess, ErrNoFaceDetected,
			"no face detected in the uploaded clip; lip sync needs a clearly visible, forward-facing face")
	}

	return PreprocessResult{
		MP4Path:      mp4Path,
		FPS:          info.FPS,
		FrameCount:   info.FrameCount,
		Duration:     info.Duration,
		FaceBox:      box,
		FaceBoxFound: found,
	}, nil
}

// extractFramePrefix writes the first scanFrames frames as PNGs and returns
// their paths in frame order.
func (p *Preprocessor) extractFramePrefix(ctx context.Context, mp4Path, workDir string) ([]string, error) {
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, err
	}
	// Zero-padded wide enough that the lexical sort below stays numeric for
	// any plausible scan depth.
	pattern := filepath.Join(framesDir, "frame_%04d.png")
	if err := p.ffmpeg.ExtractFrames(ctx, mp4Path, pattern, p.scanFrames); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(framesDir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
