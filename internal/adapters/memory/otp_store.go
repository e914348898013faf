package memory

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/viralforge/porter-dispatch/internal/domain"
)

type otpSlot struct {
	mu        sync.Mutex
	challenge *domain.OTPChallenge
	// retired is set once Sweep unlinks the slot; holders must look it up again.
	retired bool
}

// OTPStore keeps challenges in process memory. The index lock is held only to
// find or create a subject's slot; reads and writes of the challenge itself take
// the slot lock, so unrelated subjects never wait on each other.
type OTPStore struct {
	mu    sync.Mutex
	slots map[string]*otpSlot
}

func NewOTPStore() *OTPStore {
	return &OTPStore{slots: map[string]*otpSlot{}}
}

// lockSlot returns the subject's slot with its lock held.
func (s *OTPStore) lockSlot(subjectID string) *otpSlot {
	for {
		s.mu.Lock()
		slot, ok := s.slots[subjectID]
		if !ok {
			slot = &otpSlot{}
			s.slots[subjectID] = slot
		}
		s.mu.Unlock()

		slot.mu.Lock()
		if !slot.retired {
			return slot
		}
		slot.mu.Unlock()
	}
}

func (s *OTPStore) Put(_ context.Context, challenge domain.OTPChallenge) error {
	slot := s.lockSlot(challenge.SubjectID)
	defer slot.mu.Unlock()
	c := challenge
	slot.challenge = &c
	return nil
}

func (s *OTPStore) Consume(_ context.Context, subjectID, candidate string, now time.Time) (bool, error) {
	slot := s.lockSlot(subjectID)
	defer slot.mu.Unlock()
	c := slot.challenge
	if c == nil {
		return false, nil
	}
	if !c.LiveAt(now) {
		slot.challenge = nil
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(c.Code), []byte(candidate)) != 1 {
		return false, nil
	}
	slot.challenge = nil
	return true, nil
}

// Sweep drops expired challenges and empty slots. Correctness does not depend on it.
func (s *OTPStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for subjectID, slot := range s.slots {
		if !slot.mu.TryLock() {
			continue
		}
		if slot.challenge == nil || !slot.challenge.LiveAt(now) {
			if slot.challenge != nil {
				removed++
			}
			slot.retired = true
			delete(s.slots, subjectID)
		}
		slot.mu.Unlock()
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (s *OTPStore) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Sweep(now.UTC())
		}
	}
}
