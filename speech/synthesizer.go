// Package speech converts text into audio via an external synthesizer CLI.
package speech

import (
	"context"

	"github.com/google/shlex"
	"github.com/pkg/errors"

	"memesync/media"
)

// Synthesizer produces a speech audio file for a piece of text. The output
// format is whatever the engine natively emits; the tts stage normalizes it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, outPath string) error
}

// EdgeTTS shells out to the edge-tts CLI.
type EdgeTTS struct {
	bin       string
	extraArgs []string
	runner    media.Runner
}

// NewEdgeTTS builds the synthesizer. extraArgs is a shell-style string of
// additional flags (rate, pitch) appended to every invocation.
func NewEdgeTTS(bin, extraArgs string, runner media.Runner) (*EdgeTTS, error) {
	if bin == "" {
		bin = "edge-tts"
	}
	var extra []string
	if extraArgs != "" {
		var err error
		extra, err = shlex.Split(extraArgs)
		if err != nil {
			return nil, errors.Wrap(err, "invalid TTS extra args")
		}
	}
	return &EdgeTTS{bin: bin, extraArgs: extra, runner: runner}, nil
}

func (e *EdgeTTS) Synthesize(ctx context.Context, text, voice, outPath string) error {
	args := []string{
		"--voice", voice,
		"--text", text,
		"--write-media", outPath,
	}
	args = append(args, e.extraArgs...)
	_, err := e.runner.Run(ctx, e.bin, args...)
	return err
}
