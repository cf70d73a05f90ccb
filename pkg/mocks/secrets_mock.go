package mocks

import (
	"context"

	"github.com/dukex/taskpipe/pkg/secrets"
	"github.com/stretchr/testify/mock"
)

// MockSecretStore is a mock implementation of secrets.Store interface.
type MockSecretStore struct {
	mock.Mock
}

func (m *MockSecretStore) Fetch(ctx context.Context, accountID string) (secrets.Bundle, error) {
	args := m.Called(ctx, accountID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(secrets.Bundle), args.Error(1)
}

func (m *MockSecretStore) Put(ctx context.Context, accountID, name, value string) error {
	args := m.Called(ctx, accountID, name, value)

	return args.Error(0)
}

func (m *MockSecretStore) Delete(ctx context.Context, accountID, name string) error {
	args := m.Called(ctx, accountID, name)

	return args.Error(0)
}

var _ secrets.Store = (*MockSecretStore)(nil)
