package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/fintrack-backend/pkg/redis"
)

func newLockStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.Wrap(raw), mr
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store, mr := newLockStore(t)

	first, err := NewRedisLock(store, "ft:cron-worker:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewRedisLock(store, "ft:cron-worker:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to win, ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("expected second acquire to lose, ok=%v err=%v", ok, err)
	}

	// a loser releasing must not free the winner's lock
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by loser: %v", err)
	}
	if !mr.Exists("ft:cron-worker:lock:test") {
		t.Fatal("lock removed by non-owner")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestRedisLockExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newLockStore(t)
	lock, err := NewRedisLock(store, "ft:cron-worker:lock:ttl", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	mr.FastForward(2 * time.Minute)

	other, _ := NewRedisLock(store, "ft:cron-worker:lock:ttl", time.Minute)
	if ok, err := other.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected expired lock to be reacquired, ok=%v err=%v", ok, err)
	}
	// stale owner sees a different value and leaves the key alone
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists("ft:cron-worker:lock:ttl") {
		t.Fatal("stale owner removed the new lock")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected nil client to be rejected")
	}
	store, _ := newLockStore(t)
	if _, err := NewRedisLock(store, "", 0); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
}

func TestRedisLockOwnerNamesInstance(t *testing.T) {
	t.Setenv("FINTRACK_WORKER_ID", "cron-a")
	store, mr := newLockStore(t)
	lock, err := NewRedisLock(store, "ft:cron-worker:lock:owner", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, err := lock.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	owner, err := mr.Get("ft:cron-worker:lock:owner")
	if err != nil {
		t.Fatalf("read owner: %v", err)
	}
	if !strings.HasPrefix(owner, "cron-a:") {
		t.Fatalf("expected owner to start with instance id, got %q", owner)
	}
}
