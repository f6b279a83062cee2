package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CycleLock coordinates exclusive scan cycles across worker instances.
type CycleLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisCycleLock implements CycleLock with SETNX plus a TTL, so a
// crashed worker frees the cycle automatically.
type RedisCycleLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisCycleLock constructs a Redis-backed cycle lock.
func NewRedisCycleLock(client *redis.Client, key string, ttl time.Duration) (*RedisCycleLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for scan lock")
	}
	if key == "" {
		return nil, errors.New("scan lock key is required")
	}
	if ttl <= 0 {
		return nil, errors.New("scan lock ttl must be positive")
	}
	return &RedisCycleLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisCycleLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisCycleLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	value, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}
