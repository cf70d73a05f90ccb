package bundler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/taskpipe/pkg/bundler"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/session"
	"github.com/dukex/taskpipe/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingResolver struct{}

func (failingResolver) Get(context.Context, string) (secrets.Bundle, error) {
	return nil, errors.New("store unavailable")
}

func setup(t *testing.T) (*bundler.Bundler, *session.Manager, *secrets.MemoryStore) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewManager(logger)
	store := secrets.NewMemoryStore()

	return bundler.New(logger, sessions, secrets.NewCache(logger, store)), sessions, store
}

func TestBundle_RendersAgainstOutputsAndSecrets(t *testing.T) {
	b, sessions, store := setup(t)
	ctx := context.Background()

	flowSession, err := sessions.Start("session-1", map[string]any{"user": "ana"})
	require.NoError(t, err)
	require.NoError(t, flowSession.Set("lookup", map[string]any{"id": 42}))
	require.NoError(t, store.Put(ctx, "acct-1", "token", "s3cret"))

	task := &models.Task{
		TaskID:        "call",
		Kind:          models.ActionKindAction,
		FlowSessionID: "session-1",
		AccountID:     "acct-1",
		Input: map[string]any{
			"url":    "https://api.example.com/users/{{tasks.lookup.id}}",
			"id":     "{{tasks.lookup.id}}",
			"auth":   "Bearer {{secrets.token}}",
			"caller": "{{tasks.trigger.user}}",
		},
	}

	bundle, err := b.Bundle(ctx, task)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"url":    "https://api.example.com/users/42",
		"id":     json.Number("42"),
		"auth":   "Bearer s3cret",
		"caller": "ana",
	}, bundle.Input)
	assert.Equal(t, map[string]any{"token": "s3cret"}, bundle.Context[bundler.SecretsKey])
	assert.Same(t, flowSession, bundle.Session)
}

func TestBundle_NoAccountHasEmptySecrets(t *testing.T) {
	b, sessions, _ := setup(t)

	_, err := sessions.Start("session-1", nil)
	require.NoError(t, err)

	bundle, err := b.Bundle(context.Background(), &models.Task{
		TaskID:        "t",
		Kind:          models.ActionKindAction,
		FlowSessionID: "session-1",
		Input:         "static",
	})
	require.NoError(t, err)
	assert.Equal(t, "static", bundle.Input)
	assert.Equal(t, map[string]any{}, bundle.Context[bundler.SecretsKey])
}

func TestBundle_MissingVariable(t *testing.T) {
	b, sessions, _ := setup(t)

	_, err := sessions.Start("session-1", nil)
	require.NoError(t, err)

	_, err = b.Bundle(context.Background(), &models.Task{
		TaskID:        "t",
		FlowSessionID: "session-1",
		Input:         "{{tasks.nope.id}}",
	})
	require.Error(t, err)

	var bundleErr *bundler.BundleError
	require.ErrorAs(t, err, &bundleErr)
	assert.Equal(t, "t", bundleErr.TaskID)
	assert.True(t, template.IsVariableNotFound(err))
	assert.Contains(t, err.Error(), "failed to bundle task context for task t:")
}

func TestBundle_UnknownSession(t *testing.T) {
	b, _, _ := setup(t)

	_, err := b.Bundle(context.Background(), &models.Task{TaskID: "t", FlowSessionID: "gone"})
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.True(t, bundler.IsBundleError(err))
}

func TestBundle_SecretFetchFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewManager(logger)
	_, err := sessions.Start("session-1", nil)
	require.NoError(t, err)

	b := bundler.New(logger, sessions, failingResolver{})

	_, err = b.Bundle(context.Background(), &models.Task{TaskID: "t", FlowSessionID: "session-1", AccountID: "acct-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}
