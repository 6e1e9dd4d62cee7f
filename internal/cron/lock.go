package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// The cleanup jobs run on a daily cadence, so the default lease covers a full
// day plus slack for a slow sweep.
const defaultLockTTL = 26 * time.Hour

// Lock serializes cron cycles across worker replicas. Only the replica that
// acquired the lock runs the registered jobs; the rest skip the cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// lockStore is the slice of the redis client the lock needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock leases a redis key with SETNX. Each acquisition writes a fresh
// fencing token so a replica whose lease expired mid-cycle cannot release a
// lock that another replica holds in the meantime.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire attempts to take the lease. A false return with nil error means
// another replica holds it; the caller should sit this cycle out.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cron lock %q: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lease, but only when the stored token is still ours. An
// expired or stolen lease is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		l.token = ""
		return nil
	case err != nil:
		return fmt.Errorf("read cron lock %q: %w", l.key, err)
	case current != l.token:
		l.token = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release cron lock %q: %w", l.key, err)
	}
	l.token = ""
	return nil
}
