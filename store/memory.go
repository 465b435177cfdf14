package store

import (
	"context"
	"sync"
)

// MemoryStore implements the same contract as RedisStore in process memory.
// Used by tests and single-process dev runs without a redis.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]JobState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]JobState)}
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.jobs[jobID]
	if !ok {
		return JobState{}, ErrNotFound
	}
	return state, nil
}

func (s *MemoryStore) Put(ctx context.Context, state JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[state.ID] = state
	return nil
}

func (s *MemoryStore) FindByTaskRef(ctx context.Context, taskRef string) (JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.jobs {
		if state.TaskRef == taskRef {
			return state, nil
		}
	}
	return JobState{}, ErrNotFound
}
