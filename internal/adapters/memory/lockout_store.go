package memory

import (
	"context"
	"sync"
	"time"

	"github.com/viralforge/porter-dispatch/internal/ports"
)

type LockoutStore struct {
	mu     sync.Mutex
	states map[string]ports.LockoutState
}

func NewLockoutStore() *LockoutStore {
	return &LockoutStore{states: map[string]ports.LockoutState{}}
}

func (s *LockoutStore) Get(_ context.Context, key string) (ports.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key], nil
}

func (s *LockoutStore) RecordFailure(_ context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[key]
	if state.LockedUntil != nil && !state.LockedUntil.After(now) {
		state = ports.LockoutState{}
	}
	state.FailedCount++
	if state.FailedCount >= threshold {
		until := now.Add(lockoutWindow)
		state.LockedUntil = &until
	}
	s.states[key] = state
	return state, nil
}

func (s *LockoutStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}
