package auth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/taskpipe/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_GetDoesNotRemove(t *testing.T) {
	store := auth.NewStore(discardLogger(), 0)
	store.Put(auth.State{State: "s1", AccountID: "acct-1", CreatedAt: time.Now()})

	for range 2 {
		state, err := store.Get("s1")
		require.NoError(t, err)
		assert.Equal(t, "acct-1", state.AccountID)
	}

	_, err := store.Get("unknown")
	require.ErrorIs(t, err, auth.ErrInvalidState)
}

func TestStore_ZeroTTLNeverEvicts(t *testing.T) {
	store := auth.NewStore(discardLogger(), 0)
	store.Put(auth.State{State: "old", CreatedAt: time.Now().Add(-365 * 24 * time.Hour)})

	assert.Equal(t, 0, store.Sweep(time.Now()))
	assert.Equal(t, 1, store.Len())
}

func TestStore_SweepRemovesExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := auth.NewStore(discardLogger(), 10*time.Minute)

	store.Put(auth.State{State: "expired", CreatedAt: now.Add(-11 * time.Minute)})
	store.Put(auth.State{State: "fresh", CreatedAt: now.Add(-time.Minute)})

	assert.Equal(t, 1, store.Sweep(now))

	_, err := store.Get("expired")
	require.ErrorIs(t, err, auth.ErrInvalidState)

	_, err = store.Get("fresh")
	require.NoError(t, err)
}

func TestStore_RunSweepsPeriodically(t *testing.T) {
	store := auth.NewStore(discardLogger(), time.Millisecond)
	store.Put(auth.State{State: "short-lived", CreatedAt: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go store.Run(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}
