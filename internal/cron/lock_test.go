package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubLockStore struct {
	values map[string]string
	setErr error
	getErr error
	delErr error
	dels   int
}

func newStubLockStore() *stubLockStore {
	return &stubLockStore{values: map[string]string{}}
}

func (s *stubLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, held := s.values[key]; held {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *stubLockStore) Get(_ context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *stubLockStore) Del(_ context.Context, keys ...string) error {
	if s.delErr != nil {
		return s.delErr
	}
	s.dels++
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newStubLockStore()
	lock, err := NewRedisLock(store, "cb:test:lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected acquisition, got ok=%v err=%v", ok, err)
	}

	second, err := NewRedisLock(store, "cb:test:lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatal("expected contended acquisition to fail")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(store.values) != 0 {
		t.Fatal("expected lock key deleted")
	}
}

func TestRedisLockReleaseLeavesForeignToken(t *testing.T) {
	store := newStubLockStore()
	lock, err := NewRedisLock(store, "cb:test:lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, err := lock.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("expected acquisition, got ok=%v err=%v", ok, err)
	}

	// Lease expired and another replica re-acquired under a new token.
	store.values["cb:test:lock"] = "someone-else"

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.dels != 0 {
		t.Fatal("expected foreign lock left in place")
	}
	if store.values["cb:test:lock"] != "someone-else" {
		t.Fatal("expected foreign token untouched")
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	store := newStubLockStore()
	store.getErr = errors.New("should not be called")
	lock, err := NewRedisLock(store, "cb:test:lock", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}
