package ports

import (
	"context"
	"time"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

// OTPChallengeStore keeps at most one live challenge per subject.
type OTPChallengeStore interface {
	// Put stores the challenge, replacing any earlier one for the same subject.
	Put(ctx context.Context, challenge domain.OTPChallenge) error
	// Consume atomically deletes the subject's challenge if it is live at now and
	// its code equals candidate. It reports whether that happened.
	Consume(ctx context.Context, subjectID, candidate string, now time.Time) (bool, error)
}

// LockoutState is the current lockout envelope for a login key.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

// LockoutStore handles short-lived brute-force protection state.
type LockoutStore interface {
	Get(ctx context.Context, key string) (LockoutState, error)
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (LockoutState, error)
	Clear(ctx context.Context, key string) error
}
