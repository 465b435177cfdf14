package media

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Runner abstracts external process execution so stages can be tested
// without ffmpeg installed. Run returns the combined stdout/stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct {
	Log *logrus.Logger
}

func NewExecRunner(log *logrus.Logger) *ExecRunner {
	return &ExecRunner{Log: log}
}

// Run executes one command, blocking until it exits or ctx is done. The
// combined output is returned even on failure so callers can surface it.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if r.Log != nil {
		r.Log.WithField("cmd", name+" "+strings.Join(args, " ")).Debug("executing")
	}

	err := cmd.Run()
	out := buf.String()
	if err != nil {
		return out, errors.Wrapf(err, "%s failed: %s", name, tail(out, 512))
	}
	return out, nil
}

// tail returns at most the last n bytes of s; ffmpeg errors end up at the
// bottom of its output.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
