package media

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"
)

// ErrUnavailable reports that the optimizer binary is not installed. It is a
// distinct outcome from a failed run so callers can fall back explicitly.
var ErrUnavailable = errors.New("gifsicle not available")

// Gifsicle is the optional lossy GIF compressor.
type Gifsicle struct {
	bin      string
	runner   Runner
	lookPath func(string) (string, error)
}

func NewGifsicle(bin string, runner Runner) *Gifsicle {
	if bin == "" {
		bin = "gifsicle"
	}
	return &Gifsicle{bin: bin, runner: runner, lookPath: exec.LookPath}
}

// Available reports whether the optimizer can be invoked at all.
func (g *Gifsicle) Available() bool {
	_, err := g.lookPath(g.bin)
	return err == nil
}

// Optimize compresses in into out. Returns ErrUnavailable when the binary is
// missing; any other error means the binary ran and failed.
func (g *Gifsicle) Optimize(ctx context.Context, in, out string) error {
	if !g.Available() {
		return ErrUnavailable
	}
	_, err := g.runner.Run(ctx, g.bin,
		"-O3",
		"--lossy=80",
		in,
		"-o", out,
	)
	return err
}
