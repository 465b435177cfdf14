// Package store persists job state. A job record is the single source of
// truth for status, progress, output and error; the orchestrator is its only
// writer during a run, so puts are blind whole-record overwrites.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a job id or task ref matches nothing.
var ErrNotFound = errors.New("job not found")

// Status is a job's position in the pipeline.
type Status string

const (
	StatusUploaded       Status = "uploaded"
	StatusQueued         Status = "queued"
	StatusPreprocessing  Status = "preprocessing"
	StatusTTS            Status = "tts"
	StatusLipsync        Status = "lipsync"
	StatusPostprocessing Status = "postprocessing"
	StatusDone           Status = "done"
	StatusError          Status = "error"
)

// Terminal reports whether no further transitions will occur for this run.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Running reports whether a run is currently holding the job.
func (s Status) Running() bool {
	switch s {
	case StatusQueued, StatusPreprocessing, StatusTTS, StatusLipsync, StatusPostprocessing:
		return true
	}
	return false
}

// JobState is one job record. Exactly one of OutputURL/Error is set once the
// status is terminal; both are empty before that.
type JobState struct {
	ID        string    `json:"job_id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	OutputURL string    `json:"output_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	InputPath string    `json:"input_path,omitempty"`
	TaskRef   string    `json:"task_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the durable job-state contract. Put overwrites the full record;
// there is no field-level update and no optimistic concurrency, which is safe
// because at most one run mutates a given job at a time.
type Store interface {
	Get(ctx context.Context, jobID string) (JobState, error)
	Put(ctx context.Context, state JobState) error
	// FindByTaskRef maps a dispatched task reference back to its job.
	FindByTaskRef(ctx context.Context, taskRef string) (JobState, error)
}
