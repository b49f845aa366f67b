// Package testutil provides shared mock implementations of the engine and
// llm interfaces for unit tests. Configure expectations with testify/mock
// (e.g. .On("Check", ...).Return(...)).
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/astrio-ai/legacy2modern/internal/llm"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

// MockHooks mocks the engine.Hooks interface. Safe for concurrent use; the
// scheduler calls hook methods from chunk goroutines.
type MockHooks struct {
	mock.Mock
}

func (m *MockHooks) OnChunkQueued(chunkID string, itemCount, estimatedCost int) error {
	args := m.Called(chunkID, itemCount, estimatedCost)
	return args.Error(0)
}

func (m *MockHooks) OnChunkStatusUpdate(chunkID string, status engine.Status, message string, attempt int) error {
	args := m.Called(chunkID, status, message, attempt)
	return args.Error(0)
}

func (m *MockHooks) OnRunComplete(report engine.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

// MockCacheManager mocks the engine.CacheManager interface.
type MockCacheManager struct {
	mock.Mock
}

func (m *MockCacheManager) Load(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

func (m *MockCacheManager) Check(chunkHash, configHash string) ([]byte, bool) {
	args := m.Called(chunkHash, configHash)
	payload, _ := args.Get(0).([]byte)
	hit, _ := args.Get(1).(bool)
	return payload, hit
}

func (m *MockCacheManager) Update(chunkHash, configHash string, payload []byte) error {
	args := m.Called(chunkHash, configHash, payload)
	return args.Error(0)
}

func (m *MockCacheManager) Persist(cachePath string) error {
	args := m.Called(cachePath)
	return args.Error(0)
}

// MockLLMClient mocks the llm.Client interface.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
