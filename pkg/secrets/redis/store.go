// Package redis stores account secrets as one Redis hash per account.
package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taskpipe:secrets:"

// Client is the subset of the go-redis API the store needs.
type Client interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

type Store struct {
	client Client
	logger *slog.Logger
}

func NewStore(logger *slog.Logger, client Client) *Store {
	return &Store{
		client: client,
		logger: logger.With("module", "redis_secret_store"),
	}
}

// NewStoreFromURL parses a redis:// URL and connects.
func NewStoreFromURL(ctx context.Context, logger *slog.Logger, url string) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewStore(logger, client), nil
}

func accountKey(accountID string) string {
	return keyPrefix + accountID
}

func (s *Store) Fetch(ctx context.Context, accountID string) (secrets.Bundle, error) {
	values, err := s.client.HGetAll(ctx, accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets for account %s: %w", accountID, err)
	}

	return secrets.Bundle(values).Clone(), nil
}

func (s *Store) Put(ctx context.Context, accountID, name, value string) error {
	err := s.client.HSet(ctx, accountKey(accountID), name, value).Err()
	if err != nil {
		return fmt.Errorf("failed to save secret %s: %w", name, err)
	}

	s.logger.DebugContext(ctx, "Secret saved", "account_id", accountID, "name", name)

	return nil
}

func (s *Store) Delete(ctx context.Context, accountID, name string) error {
	removed, err := s.client.HDel(ctx, accountKey(accountID), name).Result()
	if err != nil {
		return fmt.Errorf("failed to delete secret %s: %w", name, err)
	}

	if removed == 0 {
		return fmt.Errorf("%w: %s/%s", secrets.ErrSecretNotFound, accountID, name)
	}

	return nil
}

// Close releases the underlying client when it owns a connection pool.
func (s *Store) Close() error {
	if closer, ok := s.client.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
