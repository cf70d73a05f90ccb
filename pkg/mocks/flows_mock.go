package mocks

import (
	"context"

	"github.com/dukex/taskpipe/pkg/flows"
	"github.com/dukex/taskpipe/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockFlowRepository is a mock implementation of flows.Repository interface.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) Get(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) All(ctx context.Context) ([]*models.Flow, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Flow), args.Error(1)
}

var _ flows.Repository = (*MockFlowRepository)(nil)
