package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrUnknownProvider indicates a provider name with no OAuth configuration.
var ErrUnknownProvider = errors.New("unknown auth provider")

// SecretWriter persists account secrets and invalidates their cached copies.
type SecretWriter interface {
	StoreSecret(ctx context.Context, accountID, name, value string) error
}

// Providers maps provider names to their OAuth client configuration.
type Providers map[string]*oauth2.Config

// Flow drives initiate and callback of the authorization-code grant with PKCE.
type Flow struct {
	store     *Store
	providers Providers
	secrets   SecretWriter
	logger    *slog.Logger
	now       func() time.Time
}

func NewFlow(logger *slog.Logger, store *Store, providers Providers, secrets SecretWriter) *Flow {
	return &Flow{
		store:     store,
		providers: providers,
		secrets:   secrets,
		logger:    logger.With("module", "auth_flow"),
		now:       time.Now,
	}
}

// Initiate records a new handshake for the account and returns the provider
// authorization URL along with its state token.
func (f *Flow) Initiate(accountID, provider string) (string, string, error) {
	config, ok := f.providers[provider]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	state := State{
		State:        uuid.NewString(),
		CodeVerifier: oauth2.GenerateVerifier(),
		AccountID:    accountID,
		Provider:     provider,
		CreatedAt:    f.now().UTC(),
	}

	f.store.Put(state)

	f.logger.Info("Auth handshake initiated", "account_id", accountID, "provider", provider)

	authURL := config.AuthCodeURL(state.State, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(state.CodeVerifier))

	return authURL, state.State, nil
}

// Callback completes the handshake: it exchanges code for tokens, stores them
// as account secrets and returns the account id.
func (f *Flow) Callback(ctx context.Context, provider, stateToken, code string) (string, error) {
	config, ok := f.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	state, err := f.store.Get(stateToken)
	if err != nil {
		return "", err
	}

	if state.Provider != provider {
		return "", ErrInvalidState
	}

	token, err := config.Exchange(ctx, code, oauth2.VerifierOption(state.CodeVerifier))
	if err != nil {
		return "", fmt.Errorf("failed to exchange code for token: %w", err)
	}

	secrets := map[string]string{
		provider + "_access_token": token.AccessToken,
	}

	if token.RefreshToken != "" {
		secrets[provider+"_refresh_token"] = token.RefreshToken
	}

	if !token.Expiry.IsZero() {
		secrets[provider+"_access_token_expires_at"] = token.Expiry.UTC().Format(time.RFC3339)
	}

	for name, value := range secrets {
		err := f.secrets.StoreSecret(ctx, state.AccountID, name, value)
		if err != nil {
			return "", err
		}
	}

	f.logger.InfoContext(ctx, "Auth handshake completed", "account_id", state.AccountID, "provider", provider)

	return state.AccountID, nil
}
