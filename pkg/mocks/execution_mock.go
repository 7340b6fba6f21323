package mocks

import (
	"context"

	"github.com/dukex/querygate/pkg/events"
	"github.com/dukex/querygate/pkg/execution"
	"github.com/dukex/querygate/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of services.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req *models.Request) execution.Outcome {
	args := m.Called(ctx, req)

	return args.Get(0).(execution.Outcome)
}

// MockNotifier is a mock implementation of services.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, event events.RequestEvent) {
	m.Called(ctx, event)
}

// MockStore is a mock implementation of storage.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(ctx context.Context, name string, content []byte, contentType string) (string, error) {
	args := m.Called(ctx, name, content, contentType)

	return args.String(0), args.Error(1)
}

func (m *MockStore) Exists(ctx context.Context, objectURL string) (bool, error) {
	args := m.Called(ctx, objectURL)

	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, objectURL string) error {
	args := m.Called(ctx, objectURL)

	return args.Error(0)
}
