// Package bundler assembles the execution context of a ready task and renders
// its input template against it.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/taskpipe/pkg/models"
	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/session"
	"github.com/dukex/taskpipe/pkg/template"
)

// Keys of the merged context that templates address.
const (
	TasksKey   = "tasks"
	SecretsKey = "secrets"
)

// Sessions resolves live flow sessions.
type Sessions interface {
	Get(id string) (*session.Context, error)
}

// SecretResolver returns the secret bundle of an account.
type SecretResolver interface {
	Get(ctx context.Context, accountID string) (secrets.Bundle, error)
}

// Bundle is the materialized execution context of one task.
type Bundle struct {
	// Context is {"tasks": <outputs so far>, "secrets": <account secrets>}.
	Context map[string]any
	// Input is the task's input template rendered against Context.
	Input   any
	Session *session.Context
}

// BundleError reports why a task's context could not be assembled.
type BundleError struct {
	TaskID string
	Err    error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("failed to bundle task context for task %s: %v", e.TaskID, e.Err)
}

func (e *BundleError) Unwrap() error {
	return e.Err
}

// IsBundleError checks if an error is a context bundling failure.
func IsBundleError(err error) bool {
	var bundleErr *BundleError

	return errors.As(err, &bundleErr)
}

type Bundler struct {
	sessions Sessions
	secrets  SecretResolver
	logger   *slog.Logger
}

func New(logger *slog.Logger, sessions Sessions, secrets SecretResolver) *Bundler {
	return &Bundler{
		sessions: sessions,
		secrets:  secrets,
		logger:   logger.With("module", "bundler"),
	}
}

// Bundle builds the context for task and renders its input.
func (b *Bundler) Bundle(ctx context.Context, task *models.Task) (*Bundle, error) {
	flowSession, err := b.sessions.Get(task.FlowSessionID)
	if err != nil {
		return nil, &BundleError{TaskID: task.TaskID, Err: err}
	}

	accountSecrets := secrets.Bundle{}

	if task.AccountID != "" {
		accountSecrets, err = b.secrets.Get(ctx, task.AccountID)
		if err != nil {
			return nil, &BundleError{TaskID: task.TaskID, Err: fmt.Errorf("failed to load account secrets: %w", err)}
		}
	}

	merged := map[string]any{
		TasksKey:   flowSession.Snapshot(),
		SecretsKey: accountSecrets.Values(),
	}

	input, err := template.Render(task.Input, merged)
	if err != nil {
		return nil, &BundleError{TaskID: task.TaskID, Err: err}
	}

	b.logger.DebugContext(ctx, "Task context bundled",
		"task_id", task.TaskID,
		"flow_session_id", task.FlowSessionID,
		"account_id", task.AccountID)

	return &Bundle{Context: merged, Input: input, Session: flowSession}, nil
}
