package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"memesync/media"
)

const stagePostprocess = "postprocess"

// Optimizer is the optional lossy compression pass.
type Optimizer interface {
	Optimize(ctx context.Context, in, out string) error
}

// Postprocessor re-encodes the inference output into the final GIF: a
// two-pass palette encode followed by a best-effort compression pass.
type Postprocessor struct {
	ffmpeg    Transcoder
	optimizer Optimizer
	maxFPS    float64
	log       *logrus.Logger
}

func NewPostprocessor(ffmpeg Transcoder, optimizer Optimizer, maxFPS float64, log *logrus.Logger) *Postprocessor {
	if maxFPS <= 0 {
		maxFPS = 30
	}
	return &Postprocessor{ffmpeg: ffmpeg, optimizer: optimizer, maxFPS: maxFPS, log: log}
}

// Run encodes mp4Path into outPath at the source frame rate, capped to bound
// output size. Intermediates live in workDir and are removed on every path.
func (p *Postprocessor) Run(ctx context.Context, mp4Path, outPath, workDir string, fps float64) error {
	if fps <= 0 {
		fps = 10
	}
	if fps > p.maxFPS {
		fps = p.maxFPS
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return failure(stagePostprocess, err, "creating output directory: %v", err)
	}

	palettePath := filepath.Join(workDir, "palette.png")
	rawGIFPath := filepath.Join(workDir, "raw.gif")
	defer os.Remove(palettePath)
	defer os.Remove(rawGIFPath)

	p.log.WithField("fps", fps).Info("generating palette")
	if err := p.ffmpeg.GeneratePalette(ctx, mp4Path, palettePath, fps); err != nil {
		return failure(stagePostprocess, err, "generating palette: %v", err)
	}

	p.log.Info("rendering GIF with palette")
	if err := p.ffmpeg.RenderGIF(ctx, mp4Path, palettePath, rawGIFPath, fps); err != nil {
		return failure(stagePostprocess, err, "rendering GIF: %v", err)
	}

	err := p.optimizer.Optimize(ctx, rawGIFPath, outPath)
	switch {
	case err == nil:
		p.log.Info("GIF compressed")
	case errors.Is(err, media.ErrUnavailable):
		p.log.Warn("gifsicle not available, keeping uncompressed GIF")
		if err := moveFile(rawGIFPath, outPath); err != nil {
			return failure(stagePostprocess, err, "moving GIF to output: %v", err)
		}
	default:
		return failure(stagePostprocess, err, "compressing GIF: %v", err)
	}

	return nil
}

// moveFile renames, falling back to a copy when temp and output live on
// different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
