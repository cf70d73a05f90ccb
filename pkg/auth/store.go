// Package auth implements the OAuth authorization-code handshake that turns a
// provider login into stored account secrets.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidState indicates a callback whose state token was never issued or has expired.
var ErrInvalidState = errors.New("invalid state")

// State is the pending handshake recorded between initiate and callback.
type State struct {
	State        string
	CodeVerifier string
	AccountID    string
	Provider     string
	CreatedAt    time.Time
}

// Store holds pending handshakes keyed by state token. Entries older than the
// TTL are removed by Sweep; a zero TTL keeps entries forever.
type Store struct {
	logger *slog.Logger
	ttl    time.Duration

	mu     sync.RWMutex
	states map[string]State
}

func NewStore(logger *slog.Logger, ttl time.Duration) *Store {
	return &Store{
		logger: logger.With("module", "auth_state_store"),
		ttl:    ttl,
		states: make(map[string]State),
	}
}

func (s *Store) Put(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.State] = state
}

// Get returns the handshake for token. The entry stays in place.
func (s *Store) Get(token string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[token]
	if !ok {
		return State{}, ErrInvalidState
	}

	return state, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.states)
}

// Sweep removes handshakes created more than the TTL before now and returns
// how many were removed.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for token, state := range s.states {
		if state.CreatedAt.Before(cutoff) {
			delete(s.states, token)

			removed++
		}
	}

	return removed
}

// Run sweeps every interval until ctx is done. It returns immediately when the
// store has no TTL.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now); removed > 0 {
				s.logger.DebugContext(ctx, "Expired auth handshakes removed", "count", removed)
			}
		}
	}
}
