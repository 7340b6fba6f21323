package mocks

import (
	"context"
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/dukex/querygate/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockRequestRepository is a mock implementation of persistence.RequestRepository interface.
type MockRequestRepository struct {
	mock.Mock
}

func (m *MockRequestRepository) Create(ctx context.Context, request *models.Request) error {
	args := m.Called(ctx, request)

	return args.Error(0)
}

func (m *MockRequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Request), args.Error(1)
}

func (m *MockRequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.Request, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Request), args.Error(1)
}

func (m *MockRequestRepository) Transition(ctx context.Context, id string, from models.RequestStatus, mutate func(*models.Request)) (*models.Request, error) {
	args := m.Called(ctx, id, from, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Request), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Execution, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListExpiredArtifacts(ctx context.Context, from, to time.Time) ([]*models.Execution, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Requests   *MockRequestRepository
	Executions *MockExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Requests:   &MockRequestRepository{},
		Executions: &MockExecutionRepository{},
	}
}

func (m *MockPersistence) RequestRepository() persistence.RequestRepository {
	return m.Requests
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
