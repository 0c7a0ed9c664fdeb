package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// MockResultStore implements store.ResultStore for testing. Results are keyed
// by task ID, so the default implementation enforces the one-result-per-task
// rule the same way the unique index does in Postgres.
type MockResultStore struct {
	// Function fields for customizable behavior
	SaveResultFn        func(ctx context.Context, result *domain.ProcessingResult) error
	GetResultByTaskIDFn func(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error)

	// SaveError is returned by the default SaveResult when set
	SaveError error

	mu      sync.Mutex
	results map[uuid.UUID]domain.ProcessingResult
}

// NewMockResultStore creates a new mock store with initialized defaults.
func NewMockResultStore() *MockResultStore {
	return &MockResultStore{
		results: make(map[uuid.UUID]domain.ProcessingResult),
	}
}

// SaveResult implements the ResultStore interface.
func (m *MockResultStore) SaveResult(ctx context.Context, result *domain.ProcessingResult) error {
	if m.SaveResultFn != nil {
		return m.SaveResultFn(ctx, result)
	}
	if m.SaveError != nil {
		return m.SaveError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.results[result.TaskID]; exists {
		return store.ErrResultExists
	}
	m.results[result.TaskID] = *result
	return nil
}

// GetResultByTaskID implements the ResultStore interface.
func (m *MockResultStore) GetResultByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error) {
	if m.GetResultByTaskIDFn != nil {
		return m.GetResultByTaskIDFn(ctx, taskID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result, exists := m.results[taskID]
	if !exists {
		return nil, store.ErrResultNotFound
	}
	copied := result
	return &copied, nil
}

// ResultCount returns how many results are stored.
func (m *MockResultStore) ResultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}
