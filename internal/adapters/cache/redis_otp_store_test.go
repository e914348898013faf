package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func putChallenge(t *testing.T, store *RedisOTPStore, subjectID, code string, issuedAt time.Time) domain.OTPChallenge {
	t.Helper()
	challenge := domain.OTPChallenge{
		SubjectID: subjectID,
		Code:      code,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(5 * time.Minute),
	}
	if err := store.Put(context.Background(), challenge); err != nil {
		t.Fatalf("put: %v", err)
	}
	return challenge
}

func TestRedisOTPStoreSingleUse(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	store := NewRedisOTPStore(client)
	ctx := context.Background()
	now := time.Now().UTC()
	putChallenge(t, store, "p1", "482913", now)

	key := otpPrefix + "p1"
	if got := mr.HGet(key, "digest"); got != digestCode("482913") {
		t.Fatalf("expected hashed code in redis, got %q", got)
	}
	if mr.TTL(key) <= 0 {
		t.Fatalf("challenge key should carry a ttl")
	}

	ok, err := store.Consume(ctx, "p1", "000000", now)
	if err != nil || ok {
		t.Fatalf("wrong code must not match: %v %v", ok, err)
	}
	ok, err = store.Consume(ctx, "p1", "482913", now)
	if err != nil || !ok {
		t.Fatalf("expected code to match: %v %v", ok, err)
	}
	ok, err = store.Consume(ctx, "p1", "482913", now)
	if err != nil || ok {
		t.Fatalf("code must be single use: %v %v", ok, err)
	}
	if mr.Exists(key) {
		t.Fatalf("consumed challenge should be deleted")
	}
}

func TestRedisOTPStoreExpiry(t *testing.T) {
	t.Parallel()

	mr, client := newTestRedis(t)
	store := NewRedisOTPStore(client)
	ctx := context.Background()
	now := time.Now().UTC()

	c := putChallenge(t, store, "p1", "111111", now)
	ok, err := store.Consume(ctx, "p1", "111111", c.ExpiresAt)
	if err != nil || ok {
		t.Fatalf("code at its expiry instant must not match: %v %v", ok, err)
	}
	if mr.Exists(otpPrefix + "p1") {
		t.Fatalf("expired challenge should be dropped on sight")
	}

	putChallenge(t, store, "p2", "222222", now)
	mr.FastForward(6 * time.Minute)
	ok, err = store.Consume(ctx, "p2", "222222", now)
	if err != nil || ok {
		t.Fatalf("challenge evicted by ttl must not match: %v %v", ok, err)
	}
}

func TestRedisOTPStoreReissueReplacesCode(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	store := NewRedisOTPStore(client)
	ctx := context.Background()
	now := time.Now().UTC()

	putChallenge(t, store, "p1", "123456", now)
	putChallenge(t, store, "p1", "654321", now.Add(time.Second))

	if ok, _ := store.Consume(ctx, "p1", "123456", now.Add(2*time.Second)); ok {
		t.Fatalf("superseded code must not match")
	}
	if ok, err := store.Consume(ctx, "p1", "654321", now.Add(2*time.Second)); err != nil || !ok {
		t.Fatalf("latest code should match: %v %v", ok, err)
	}
	if ok, _ := store.Consume(ctx, "other", "654321", now); ok {
		t.Fatalf("codes are scoped to their subject")
	}
}

func TestRedisOTPStoreConcurrentConsume(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	store := NewRedisOTPStore(client)
	now := time.Now().UTC()
	putChallenge(t, store, "p1", "909090", now)

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		fails atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Consume(context.Background(), "p1", "909090", now)
			if err != nil {
				fails.Add(1)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if fails.Load() != 0 {
		t.Fatalf("%d consumes errored", fails.Load())
	}
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestRedisLockoutStore(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	store := NewRedisLockoutStore(client)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i := 1; i <= 2; i++ {
		state, err := store.RecordFailure(ctx, "login:asha", now, 3, 15*time.Minute)
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if state.FailedCount != i || state.LockedUntil != nil {
			t.Fatalf("unexpected state after %d failures: %+v", i, state)
		}
	}
	state, err := store.RecordFailure(ctx, "login:asha", now, 3, 15*time.Minute)
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if state.LockedUntil == nil || !state.LockedUntil.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("expected lock until %v, got %+v", now.Add(15*time.Minute), state)
	}
	stored, err := store.Get(ctx, "login:asha")
	if err != nil || stored.FailedCount != 3 || stored.LockedUntil == nil {
		t.Fatalf("unexpected stored state %+v %v", stored, err)
	}

	// Once the lock has lapsed the next failure opens a fresh window.
	state, err = store.RecordFailure(ctx, "login:asha", now.Add(16*time.Minute), 3, 15*time.Minute)
	if err != nil || state.FailedCount != 1 || state.LockedUntil != nil {
		t.Fatalf("expected fresh window, got %+v %v", state, err)
	}

	if err := store.Clear(ctx, "login:asha"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if stored, _ := store.Get(ctx, "login:asha"); stored.FailedCount != 0 {
		t.Fatalf("expected cleared state, got %+v", stored)
	}
}
