package secrets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingStore struct {
	Store

	started chan struct{}
	release chan struct{}
}

func (s *blockingStore) Fetch(ctx context.Context, accountID string) (Bundle, error) {
	close(s.started)
	<-s.release

	return s.Store.Fetch(ctx, accountID)
}

func TestCache_InvalidationLeavesNoBookkeeping(t *testing.T) {
	cache := NewCache(slog.New(slog.NewTextHandler(io.Discard, nil)), NewMemoryStore())

	for i := range 1000 {
		cache.Invalidate(fmt.Sprintf("acct-%d", i))
	}

	assert.Zero(t, cache.tracked())
}

func TestCache_BookkeepingClearedAfterInFlightFill(t *testing.T) {
	store := &blockingStore{
		Store:   NewMemoryStore(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache := NewCache(slog.New(slog.NewTextHandler(io.Discard, nil)), store)

	done := make(chan error, 1)

	go func() {
		_, err := cache.Get(context.Background(), "acct-1")
		done <- err
	}()

	<-store.started
	cache.Invalidate("acct-1")
	assert.Equal(t, 2, cache.tracked())

	close(store.release)
	require.NoError(t, <-done)

	assert.Eventually(t, func() bool { return cache.tracked() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, cache.Len())
}
