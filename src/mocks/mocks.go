package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/swarmworks/hivegate/src/models"
)

// MockBackendClient implements models.BackendClient
type MockBackendClient struct {
	mock.Mock
}

func (m *MockBackendClient) Invoke(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatResponse), args.Error(1)
}

func (m *MockBackendClient) Probe(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// MockCache implements models.CompletionCache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (*models.ChatResponse, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatResponse), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, response *models.ChatResponse) error {
	args := m.Called(ctx, key, response)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
