package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

const otpPrefix = "dispatch:otp:"

// consumeScript deletes the challenge only when it is live and the digest
// matches. Expired challenges are dropped on sight.
var consumeScript = redis.NewScript(`
local data = redis.call('HMGET', KEYS[1], 'digest', 'expires_at')
if not data[1] then
  return 0
end
if tonumber(data[2]) <= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return 0
end
if data[1] ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisOTPStore keeps one hashed challenge per subject. Only the SHA-256 of the
// code is written to Redis.
type RedisOTPStore struct {
	client *redis.Client
}

func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func (s *RedisOTPStore) Put(ctx context.Context, challenge domain.OTPChallenge) error {
	key := otpPrefix + challenge.SubjectID
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"digest", digestCode(challenge.Code),
			"issued_at", challenge.IssuedAt.UnixMilli(),
			"expires_at", challenge.ExpiresAt.UnixMilli(),
		)
		p.PExpireAt(ctx, key, challenge.ExpiresAt)
		return nil
	})
	return err
}

func (s *RedisOTPStore) Consume(ctx context.Context, subjectID, candidate string, now time.Time) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{otpPrefix + subjectID}, digestCode(candidate), now.UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func digestCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
