package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const keyPrefix = "job:"

// RedisStore keeps one JSON blob per job under job:{id}, expiring after the
// configured TTL so stale jobs clean themselves up.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (JobState, error) {
	data, err := s.client.Get(ctx, keyPrefix+jobID).Bytes()
	if err == redis.Nil {
		return JobState{}, ErrNotFound
	}
	if err != nil {
		return JobState{}, errors.Wrap(err, "loading job state")
	}

	var state JobState
	if err := json.Unmarshal(data, &state); err != nil {
		return JobState{}, errors.Wrap(err, "decoding job state")
	}
	return state, nil
}

func (s *RedisStore) Put(ctx context.Context, state JobState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encoding job state")
	}
	return s.client.Set(ctx, keyPrefix+state.ID, data, s.ttl).Err()
}

// FindByTaskRef scans all job keys for a matching task ref. A linear scan is
// fine at this volume: jobs expire on a TTL, keeping the keyspace small.
func (s *RedisStore) FindByTaskRef(ctx context.Context, taskRef string) (JobState, error) {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var state JobState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		if state.TaskRef == taskRef {
			return state, nil
		}
	}
	if err := iter.Err(); err != nil {
		return JobState{}, errors.Wrap(err, "scanning job keys")
	}
	return JobState{}, ErrNotFound
}
