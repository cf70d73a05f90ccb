package secrets

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps secrets in process memory. Used for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Bundle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Bundle)}
}

func (s *MemoryStore) Fetch(_ context.Context, accountID string) (Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.accounts[accountID].Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, accountID, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, ok := s.accounts[accountID]
	if !ok {
		bundle = Bundle{}
		s.accounts[accountID] = bundle
	}

	bundle[name] = value

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, accountID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle := s.accounts[accountID]
	if _, ok := bundle[name]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrSecretNotFound, accountID, name)
	}

	delete(bundle, name)

	return nil
}
