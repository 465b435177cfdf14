package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memesync/config"
	"memesync/store"
)

// mockOrchestrator stands in for the pipeline during manager tests.
type mockOrchestrator struct {
	mu      sync.Mutex
	runFunc func(ctx context.Context, jobID, text string) error
	runs    []string
}

func (m *mockOrchestrator) Run(ctx context.Context, jobID, text string) error {
	m.mu.Lock()
	m.runs = append(m.runs, jobID)
	m.mu.Unlock()
	if m.runFunc != nil {
		return m.runFunc(ctx, jobID, text)
	}
	return nil
}

func (m *mockOrchestrator) ranJobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.runs...)
}

type mockGauge struct {
	err error
}

func (m *mockGauge) Check() error { return m.err }

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		TempDir:        t.TempDir(),
		OutputDir:      t.TempDir(),
		MaxConcurrency: 1,
		JobTimeout:     10 * time.Second,
		JobTTL:         time.Hour,
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func newTestManager(t *testing.T, orch Orchestrator) (*Manager, *store.MemoryStore) {
	st := store.NewMemoryStore()
	mgr := NewManager(testConfig(t), st, orch, testLogger())
	mgr.gauge = &mockGauge{}
	return mgr, st
}

func seedJob(t *testing.T, st store.Store, id string, status store.Status) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), store.JobState{
		ID:        id,
		Status:    status,
		InputPath: "upload.gif",
		CreatedAt: time.Now(),
	}))
}

func TestManagerSubmit(t *testing.T) {
	mgr, st := newTestManager(t, &mockOrchestrator{})
	seedJob(t, st, "job1", store.StatusUploaded)

	ref, err := mgr.Submit(context.Background(), "job1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	queued, err := st.Get(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, queued.Status)
	assert.Equal(t, ref, queued.TaskRef)
	assert.Zero(t, queued.Progress)

	// The task ref resolves back to the job for pollers.
	byRef, err := st.FindByTaskRef(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "job1", byRef.ID)
}

func TestManagerSubmitUnknownJob(t *testing.T) {
	mgr, _ := newTestManager(t, &mockOrchestrator{})

	_, err := mgr.Submit(context.Background(), "ghost", "hello")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManagerSubmitWhileRunning(t *testing.T) {
	mgr, st := newTestManager(t, &mockOrchestrator{})

	for _, status := range []store.Status{
		store.StatusQueued,
		store.StatusPreprocessing,
		store.StatusLipsync,
	} {
		seedJob(t, st, "job1", status)
		_, err := mgr.Submit(context.Background(), "job1", "hello")
		assert.ErrorIs(t, err, ErrJobRunning, "status %s", status)
	}
}

func TestManagerResubmitAfterTerminal(t *testing.T) {
	mgr, st := newTestManager(t, &mockOrchestrator{})

	for _, status := range []store.Status{store.StatusDone, store.StatusError} {
		seedJob(t, st, "job1", status)
		ref, err := mgr.Submit(context.Background(), "job1", "hello")
		require.NoError(t, err, "status %s", status)
		assert.NotEmpty(t, ref)

		// The fresh run starts from a clean slate.
		queued, err := st.Get(context.Background(), "job1")
		require.NoError(t, err)
		assert.Empty(t, queued.Error)
		assert.Empty(t, queued.OutputURL)
	}
}

func TestManagerQueueFullLeavesJobResubmittable(t *testing.T) {
	// The manager is never started, so every submission stays in the
	// buffered queue until it saturates.
	mgr, st := newTestManager(t, &mockOrchestrator{})

	for i := 0; i < cap(mgr.queue); i++ {
		id := fmt.Sprintf("filler-%d", i)
		seedJob(t, st, id, store.StatusUploaded)
		_, err := mgr.Submit(context.Background(), id, "hello")
		require.NoError(t, err)
	}

	seedJob(t, st, "victim", store.StatusUploaded)
	_, err := mgr.Submit(context.Background(), "victim", "hello")
	require.ErrorIs(t, err, ErrQueueFull)

	// The record is back where it started, not stuck in queued.
	got, err := st.Get(context.Background(), "victim")
	require.NoError(t, err)
	assert.Equal(t, store.StatusUploaded, got.Status)
	assert.Empty(t, got.TaskRef)

	// Retrying reports backpressure again rather than a phantom run.
	_, err = mgr.Submit(context.Background(), "victim", "hello")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestManagerProcessesQueuedJob(t *testing.T) {
	done := make(chan struct{})
	orch := &mockOrchestrator{
		runFunc: func(ctx context.Context, jobID, text string) error {
			close(done)
			return nil
		},
	}
	mgr, st := newTestManager(t, orch)
	seedJob(t, st, "job1", store.StatusUploaded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	_, err := mgr.Submit(ctx, "job1", "hello")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never processed")
	}
	assert.Equal(t, []string{"job1"}, orch.ranJobs())
}

func TestManagerConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0
	orch := &mockOrchestrator{
		runFunc: func(ctx context.Context, jobID, text string) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return nil
		},
	}
	mgr, st := newTestManager(t, orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	for _, id := range []string{"job1", "job2", "job3"} {
		seedJob(t, st, id, store.StatusUploaded)
		_, err := mgr.Submit(ctx, id, "hello")
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(orch.ranJobs()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak)
}

func TestManagerResourceThrottle(t *testing.T) {
	orch := &mockOrchestrator{}
	mgr, st := newTestManager(t, orch)
	mgr.gauge = &mockGauge{err: errors.New("not enough free memory")}
	seedJob(t, st, "job1", store.StatusUploaded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	_, err := mgr.Submit(ctx, "job1", "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := st.Get(context.Background(), "job1")
		return err == nil && got.Status == store.StatusError
	}, 2*time.Second, 10*time.Millisecond)

	got, err := st.Get(context.Background(), "job1")
	require.NoError(t, err)
	assert.Contains(t, got.Error, "server busy")
	assert.Empty(t, orch.ranJobs())
}

func TestManagerSweepRemovesExpiredArtifacts(t *testing.T) {
	mgr, _ := newTestManager(t, &mockOrchestrator{})

	workDir := filepath.Join(mgr.cfg.TempDir, "job1")
	require.NoError(t, os.MkdirAll(workDir, 0o755))
	gif := filepath.Join(mgr.cfg.OutputDir, "job1.gif")
	require.NoError(t, os.WriteFile(gif, []byte("gif"), 0o644))

	// Age both past the TTL.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(workDir, old, old))
	require.NoError(t, os.Chtimes(gif, old, old))

	fresh := filepath.Join(mgr.cfg.OutputDir, "job2.gif")
	require.NoError(t, os.WriteFile(fresh, []byte("gif"), 0o644))

	mgr.sweep(mgr.cfg.TempDir, mgr.cfg.JobTTL)
	mgr.sweep(mgr.cfg.OutputDir, mgr.cfg.JobTTL)

	assert.NoDirExists(t, workDir)
	assert.NoFileExists(t, gif)
	assert.FileExists(t, fresh)
}
