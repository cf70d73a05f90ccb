// Package secrets resolves account secret bundles and keeps a process-wide
// cache of them consistent with the backing secret store.
package secrets

import (
	"context"
	"errors"
	"maps"
)

var (
	// ErrSecretNotFound indicates a delete or lookup of a secret name the account does not hold.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrInvalidSecret indicates a write with a missing account id or secret name.
	ErrInvalidSecret = errors.New("invalid secret")
)

// Bundle maps secret names to their decrypted values for one account.
type Bundle map[string]string

// Clone returns an independent copy. A nil bundle clones to an empty one.
func (b Bundle) Clone() Bundle {
	if b == nil {
		return Bundle{}
	}

	return maps.Clone(b)
}

// Values returns the bundle as a JSON object suitable for template contexts.
func (b Bundle) Values() map[string]any {
	values := make(map[string]any, len(b))
	for name, value := range b {
		values[name] = value
	}

	return values
}

// Store is the authoritative secret storage. Implementations decrypt on Fetch.
type Store interface {
	// Fetch returns every secret of the account. Accounts without secrets yield an empty bundle.
	Fetch(ctx context.Context, accountID string) (Bundle, error)
	Put(ctx context.Context, accountID, name, value string) error
	Delete(ctx context.Context, accountID, name string) error
}

// IsSecretNotFound checks if an error indicates a secret was not found.
func IsSecretNotFound(err error) bool {
	return errors.Is(err, ErrSecretNotFound)
}
