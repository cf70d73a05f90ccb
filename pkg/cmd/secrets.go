package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/dukex/taskpipe/pkg/secrets/postgresql"
	"github.com/dukex/taskpipe/pkg/secrets/redis"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewSecretStore opens the secret store addressed by url. Supported schemes
// are memory://, postgres:// (or postgresql://) and redis:// (or rediss://).
// The postgres store encrypts values with passphrase.
func NewSecretStore(ctx context.Context, logger *slog.Logger, url, passphrase string) (secrets.Store, io.Closer, error) {
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		return nil, nil, fmt.Errorf("%w: secret store %q", ErrUnsupportedProvider, url)
	}

	switch scheme {
	case "memory":
		return secrets.NewMemoryStore(), nopCloser{}, nil
	case "postgres", "postgresql":
		store, err := postgresql.NewStore(ctx, logger, url, passphrase)
		if err != nil {
			return nil, nil, err
		}

		return store, store, nil
	case "redis", "rediss":
		store, err := redis.NewStoreFromURL(ctx, logger, url)
		if err != nil {
			return nil, nil, err
		}

		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("%w: secret store %q", ErrUnsupportedProvider, scheme)
	}
}
