package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viralforge/porter-dispatch/internal/ports"
)

const lockoutPrefix = "dispatch:lockout:"

// RedisLockoutStore counts failed logins per key in a Redis hash so every API
// replica sees the same lockout.
type RedisLockoutStore struct {
	client *redis.Client
}

func NewRedisLockoutStore(client *redis.Client) *RedisLockoutStore {
	return &RedisLockoutStore{client: client}
}

func (s *RedisLockoutStore) Get(ctx context.Context, key string) (ports.LockoutState, error) {
	data, err := s.client.HGetAll(ctx, lockoutPrefix+key).Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	var state ports.LockoutState
	if n, convErr := strconv.Atoi(data["failed_count"]); convErr == nil {
		state.FailedCount = n
	}
	if unix, convErr := strconv.ParseInt(data["locked_until"], 10, 64); convErr == nil && unix > 0 {
		until := time.Unix(unix, 0).UTC()
		state.LockedUntil = &until
	}
	return state, nil
}

func (s *RedisLockoutStore) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	redisKey := lockoutPrefix + key

	// An expired lock starts a fresh window.
	current, err := s.Get(ctx, key)
	if err != nil {
		return ports.LockoutState{}, err
	}
	if current.LockedUntil != nil && !current.LockedUntil.After(now) {
		if err := s.client.Del(ctx, redisKey).Err(); err != nil {
			return ports.LockoutState{}, err
		}
	}

	count, err := s.client.HIncrBy(ctx, redisKey, "failed_count", 1).Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	state := ports.LockoutState{FailedCount: int(count)}
	if int(count) < threshold {
		_ = s.client.Expire(ctx, redisKey, 24*time.Hour).Err()
		return state, nil
	}

	until := now.Add(lockoutWindow).UTC()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisKey, "locked_until", until.Unix())
		p.Expire(ctx, redisKey, lockoutWindow+30*time.Minute)
		return nil
	})
	if err != nil {
		return ports.LockoutState{}, err
	}
	state.LockedUntil = &until
	return state, nil
}

func (s *RedisLockoutStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockoutPrefix+key).Err()
}
