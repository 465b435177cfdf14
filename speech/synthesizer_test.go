package speech

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return "", f.err
}

func TestEdgeTTSSynthesize(t *testing.T) {
	runner := &fakeRunner{}
	tts, err := NewEdgeTTS("edge-tts", "", runner)
	require.NoError(t, err)

	err = tts.Synthesize(context.Background(), "Hello world", "en-US-GuyNeural", "/tmp/raw.mp3")
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"edge-tts",
		"--voice", "en-US-GuyNeural",
		"--text", "Hello world",
		"--write-media", "/tmp/raw.mp3",
	}, runner.calls[0])
}

func TestEdgeTTSExtraArgs(t *testing.T) {
	runner := &fakeRunner{}
	tts, err := NewEdgeTTS("", `--rate "+10%"`, runner)
	require.NoError(t, err)

	err = tts.Synthesize(context.Background(), "hi", "v", "out.mp3")
	require.NoError(t, err)
	last := runner.calls[0]
	assert.Equal(t, "--rate", last[len(last)-2])
	assert.Equal(t, "+10%", last[len(last)-1])
}

func TestEdgeTTSBadExtraArgs(t *testing.T) {
	_, err := NewEdgeTTS("", `--rate "unterminated`, &fakeRunner{})
	assert.Error(t, err)
}
