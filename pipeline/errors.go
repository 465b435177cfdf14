package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

// Failure classification sentinels. StageError wraps one of these so callers
// can distinguish user mistakes from deployment defects and runtime failures
// with errors.Is.
var (
	// ErrUnsupportedInput rejects asset types the pipeline cannot read.
	ErrUnsupportedInput = errors.New("unsupported input type")
	// ErrNoFaceDetected means the hard lip-sync precondition failed.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrEmptyText means there is nothing to synthesize.
	ErrEmptyText = errors.New("empty text")
	// ErrSynthesisFailed means the synthesizer ran but produced no usable audio.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
	// ErrTextTooLong means the synthesized speech exceeds the clip's duration budget.
	ErrTextTooLong = errors.New("text too long for clip")
	// ErrModelMissing means the inference weights are not deployed.
	ErrModelMissing = errors.New("model weights missing")
	// ErrInferenceToolingMissing means the inference entry point is not deployed.
	ErrInferenceToolingMissing = errors.New("inference tooling missing")
	// ErrInferenceFailed means the inference process exited non-zero.
	ErrInferenceFailed = errors.New("inference failed")
	// ErrNoOutputProduced means inference exited cleanly but wrote nothing.
	ErrNoOutputProduced = errors.New("no output produced")
)

// StageError is the only failure channel out of a stage. Cause is the
// user-facing message recorded on the job; Err carries the classification
// and any underlying error.
type StageError struct {
	Stage string
	Cause string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// failure builds a StageError with a formatted user-facing cause.
func failure(stage string, kind error, format string, args ...interface{}) *StageError {
	return &StageError{
		Stage: stage,
		Cause: fmt.Sprintf(format, args...),
		Err:   kind,
	}
}
