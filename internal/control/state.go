package control

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// State holds the process-wide pause flag read by the monitor once per cycle.
type State interface {
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}

// MemoryState keeps the flag in process memory. The zero value is unpaused.
type MemoryState struct {
	paused atomic.Bool
}

func NewMemoryState() *MemoryState {
	return &MemoryState{}
}

func (s *MemoryState) Paused(context.Context) (bool, error) {
	return s.paused.Load(), nil
}

func (s *MemoryState) SetPaused(_ context.Context, paused bool) error {
	s.paused.Store(paused)
	return nil
}

// RedisState keeps the flag under a Redis key so it survives restarts and
// is shared by every replica pointed at the same Redis.
type RedisState struct {
	client *redis.Client
	key    string
}

func NewRedisState(client *redis.Client, key string) *RedisState {
	return &RedisState{client: client, key: key}
}

func (s *RedisState) Paused(ctx context.Context) (bool, error) {
	v, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading pause flag: %w", err)
	}
	return v == "1", nil
}

func (s *RedisState) SetPaused(ctx context.Context, paused bool) error {
	var err error
	if paused {
		err = s.client.Set(ctx, s.key, "1", 0).Err()
	} else {
		err = s.client.Del(ctx, s.key).Err()
	}
	if err != nil {
		return fmt.Errorf("writing pause flag: %w", err)
	}
	return nil
}
