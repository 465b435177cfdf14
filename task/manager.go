package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"memesync/config"
	"memesync/store"
)

// ErrJobRunning rejects a duplicate trigger while a run is in flight. The
// caller maps it to a conflict response.
var ErrJobRunning = errors.New("job is already running")

// ErrQueueFull signals backpressure: the buffered queue is saturated.
var ErrQueueFull = errors.New("job queue is full")

// Orchestrator runs one job end to end. Satisfied by pipeline.Orchestrator.
type Orchestrator interface {
	Run(ctx context.Context, jobID, text string) error
}

// ResourceGauge is the pre-flight admission check run before each job.
type ResourceGauge interface {
	Check() error
}

type job struct {
	id   string
	text string
}

// Manager owns the worker pool: jobs are queued on Submit and executed by
// the worker loop under a concurrency limit and per-job timeout. Job state
// lives in the store, not here; the manager only moves jobs through it.
type Manager struct {
	cfg     *config.Config
	store   store.Store
	orch    Orchestrator
	gauge   ResourceGauge
	queue   chan job
	workSem chan struct{}
	log     *logrus.Logger
}

func NewManager(cfg *config.Config, st store.Store, orch Orchestrator, log *logrus.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   st,
		orch:    orch,
		gauge:   &systemGauge{cfg: cfg, log: log},
		queue:   make(chan job, 100),
		workSem: make(chan struct{}, cfg.MaxConcurrency),
		log:     log,
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.log.WithField("concurrency", m.cfg.MaxConcurrency).Info("job manager started")
	go m.workerLoop(ctx)
	go m.cleanupLoop(ctx)
}

// Submit marks the job as queued and hands it to the worker pool. It returns
// the task reference pollers use to track the run. A job whose previous run
// is still in flight cannot be resubmitted; a finished one can, and starts
// over from scratch.
func (m *Manager) Submit(ctx context.Context, jobID, text string) (string, error) {
	st, err := m.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if st.Status.Running() {
		return "", ErrJobRunning
	}
	prev := st

	st.Status = store.StatusQueued
	st.Progress = 0
	st.Error = ""
	st.OutputURL = ""
	st.TaskRef = shortuuid.New()
	if err := m.store.Put(ctx, st); err != nil {
		return "", err
	}

	select {
	case m.queue <- job{id: jobID, text: text}:
	default:
		// No worker ever received the job; a record stuck in queued would
		// block every resubmission, so restore it.
		if err := m.store.Put(ctx, prev); err != nil {
			m.log.WithError(err).WithField("job", jobID).Error("restoring job state after full queue")
		}
		return "", ErrQueueFull
	}
	m.log.WithFields(logrus.Fields{"job": jobID, "task": st.TaskRef}).Info("job queued")
	return st.TaskRef, nil
}

func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.log.Info("worker loop shutting down")
			return
		case j := <-m.queue:
			m.workSem <- struct{}{}
			go func(j job) {
				defer func() { <-m.workSem }()
				m.process(ctx, j)
			}(j)
		}
	}
}

func (m *Manager) process(parentCtx context.Context, j job) {
	log := m.log.WithField("job", j.id)

	// Admission check before spending any compute; a throttled job fails
	// terminally rather than sitting in the queue indefinitely.
	if err := m.gauge.Check(); err != nil {
		log.WithError(err).Warn("rejecting job, insufficient resources")
		m.failJob(parentCtx, j.id, fmt.Sprintf("server busy: %v", err))
		return
	}

	ctx := parentCtx
	if m.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, m.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := m.orch.Run(ctx, j.id, j.text)
	if err != nil {
		log.WithError(err).WithField("elapsed", time.Since(start)).Error("job run failed")
		return
	}
	log.WithField("elapsed", time.Since(start)).Info("job run finished")
}

// failJob records a terminal error for runs that never reached the pipeline.
func (m *Manager) failJob(ctx context.Context, jobID, msg string) {
	st, err := m.store.Get(ctx, jobID)
	if err != nil {
		st = store.JobState{ID: jobID}
	}
	st.Status = store.StatusError
	st.Error = msg
	if err := m.store.Put(ctx, st); err != nil {
		m.log.WithError(err).WithField("job", jobID).Error("persisting job failure")
	}
}

// cleanupLoop removes job directories and rendered GIFs whose age exceeds
// the job TTL. State records expire on their own via the store TTL; this
// keeps the disk in step with them.
func (m *Manager) cleanupLoop(ctx context.Context) {
	ttl := m.cfg.JobTTL
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("cleanup loop shutting down")
			return
		case <-ticker.C:
			m.sweep(m.cfg.TempDir, ttl)
			m.sweep(m.cfg.OutputDir, ttl)
		}
	}
}

func (m *Manager) sweep(dir string, ttl time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) <= ttl {
			continue
		}
		path := filepath.Join(dir, e.Name())
		m.log.WithField("path", path).Info("removing expired job artifact")
		if err := os.RemoveAll(path); err != nil {
			m.log.WithError(err).WithField("path", path).Warn("cleanup failed")
		}
	}
}

// systemGauge checks host headroom with gopsutil. Thresholds at zero
// disable the corresponding check.
type systemGauge struct {
	cfg *config.Config
	log *logrus.Logger
}

func (g *systemGauge) Check() error {
	if g.cfg.ThrottleCPU > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			g.log.WithError(err).Warn("could not read CPU usage")
		} else if len(p) > 0 && p[0] > 100.0-g.cfg.ThrottleCPU {
			return fmt.Errorf("not enough idle CPU: usage %.2f%%, idle threshold %.2f%%", p[0], g.cfg.ThrottleCPU)
		}
	}

	if g.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			g.log.WithError(err).Warn("could not read memory usage")
		} else if vm.Available < uint64(g.cfg.ThrottleFreeMem) {
			return fmt.Errorf("not enough free memory: available %d, required %d", vm.Available, g.cfg.ThrottleFreeMem)
		}
	}

	if g.cfg.ThrottleFreeDisk > 0 {
		d, err := disk.Usage(g.cfg.TempDir)
		if err != nil {
			g.log.WithError(err).WithField("dir", g.cfg.TempDir).Warn("could not read disk usage")
		} else if d.Free < uint64(g.cfg.ThrottleFreeDisk) {
			return fmt.Errorf("not enough free disk space: available %d, required %d", d.Free, g.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}
