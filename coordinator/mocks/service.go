package mocks

import (
	"context"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface.
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateExperiment(ctx context.Context, cfg coordinator.ExperimentConfig) (coordinator.Experiment, error) {
	args := m.Called(ctx, cfg)

	return args.Get(0).(coordinator.Experiment), args.Error(1)
}

func (m *MockService) GetExperiment(ctx context.Context, experimentID string) (coordinator.Experiment, error) {
	args := m.Called(ctx, experimentID)

	return args.Get(0).(coordinator.Experiment), args.Error(1)
}

func (m *MockService) ListExperiments(ctx context.Context, offset, limit uint64) (coordinator.ExperimentPage, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(coordinator.ExperimentPage), args.Error(1)
}

func (m *MockService) SubmitUpdate(ctx context.Context, experimentID string, update coordinator.Update) (coordinator.RoundStatus, error) {
	args := m.Called(ctx, experimentID, update)

	return args.Get(0).(coordinator.RoundStatus), args.Error(1)
}

func (m *MockService) CompleteRound(ctx context.Context, experimentID string) (fl.Model, error) {
	args := m.Called(ctx, experimentID)

	return args.Get(0).(fl.Model), args.Error(1)
}

func (m *MockService) GetModel(ctx context.Context, experimentID string, version int) (fl.Model, error) {
	args := m.Called(ctx, experimentID, version)

	return args.Get(0).(fl.Model), args.Error(1)
}

func (m *MockService) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
