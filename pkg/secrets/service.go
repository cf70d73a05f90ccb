package secrets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// Write is a single secret mutation request.
type Write struct {
	AccountID string `validate:"required"`
	Name      string `validate:"required,max=255,printascii"`
	Value     string
}

// ChangeHook is told about every committed write, after the local cache entry
// was invalidated. Other processes holding a Cache use it to learn about writes.
type ChangeHook func(ctx context.Context, accountID string)

// Service is the secret write path. Every successful write invalidates the
// account's cache entry before returning.
type Service struct {
	store     Store
	cache     *Cache
	validator *validator.Validate
	logger    *slog.Logger
	hooks     []ChangeHook
}

func NewService(logger *slog.Logger, store Store, cache *Cache) *Service {
	return &Service{
		store:     store,
		cache:     cache,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "secret_service"),
	}
}

// OnChange registers a hook run after each committed write.
func (s *Service) OnChange(hook ChangeHook) {
	s.hooks = append(s.hooks, hook)
}

func (s *Service) changed(ctx context.Context, accountID string) {
	s.cache.Invalidate(accountID)

	for _, hook := range s.hooks {
		hook(ctx, accountID)
	}
}

// StoreSecret creates or replaces one secret of the account.
func (s *Service) StoreSecret(ctx context.Context, accountID, name, value string) error {
	write := Write{AccountID: accountID, Name: name, Value: value}

	if err := s.validator.Struct(write); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}

	if err := s.store.Put(ctx, accountID, name, value); err != nil {
		return fmt.Errorf("failed to store secret %s for account %s: %w", name, accountID, err)
	}

	s.changed(ctx, accountID)

	s.logger.InfoContext(ctx, "Secret stored", "account_id", accountID, "name", name)

	return nil
}

// DeleteSecret removes one secret of the account.
func (s *Service) DeleteSecret(ctx context.Context, accountID, name string) error {
	write := Write{AccountID: accountID, Name: name}

	if err := s.validator.Struct(write); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}

	if err := s.store.Delete(ctx, accountID, name); err != nil {
		return fmt.Errorf("failed to delete secret %s for account %s: %w", name, accountID, err)
	}

	s.changed(ctx, accountID)

	s.logger.InfoContext(ctx, "Secret deleted", "account_id", accountID, "name", name)

	return nil
}
