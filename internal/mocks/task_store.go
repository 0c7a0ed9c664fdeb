package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// MockTaskStore implements store.TaskStore for testing. The default
// implementation is a thread-safe in-memory map that returns copies, so a
// caller mutating a loaded task does not change the stored record until it
// calls UpdateTask, matching database semantics.
type MockTaskStore struct {
	// Function fields for customizable behavior
	CreateTaskFn        func(ctx context.Context, task *domain.ProcessingTask) error
	CreateTasksFn       func(ctx context.Context, tasks []*domain.ProcessingTask) error
	GetTaskFn           func(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error)
	UpdateTaskFn        func(ctx context.Context, task *domain.ProcessingTask) error
	ListTasksByFileFn   func(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error)
	ListTasksByBatchFn  func(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error)
	ListTasksByStatusFn func(ctx context.Context, status domain.TaskStatus) ([]*domain.ProcessingTask, error)

	// Errors returned by the default implementation when set
	CreateError error
	UpdateError error

	mu    sync.Mutex
	tasks map[uuid.UUID]domain.ProcessingTask
}

// NewMockTaskStore creates a new mock store with initialized defaults.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[uuid.UUID]domain.ProcessingTask),
	}
}

// CreateTask implements the TaskStore interface.
func (m *MockTaskStore) CreateTask(ctx context.Context, task *domain.ProcessingTask) error {
	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(ctx, task)
	}
	if m.CreateError != nil {
		return m.CreateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	m.tasks[task.ID] = *task
	return nil
}

// CreateTasks implements the TaskStore interface. The default implementation
// mirrors the transactional store: all tasks are stored or none are.
func (m *MockTaskStore) CreateTasks(ctx context.Context, tasks []*domain.ProcessingTask) error {
	if m.CreateTasksFn != nil {
		return m.CreateTasksFn(ctx, tasks)
	}
	if m.CreateError != nil {
		return m.CreateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range tasks {
		if _, exists := m.tasks[task.ID]; exists {
			return store.ErrDuplicate
		}
	}
	for _, task := range tasks {
		m.tasks[task.ID] = *task
	}
	return nil
}

// GetTask implements the TaskStore interface.
func (m *MockTaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, taskID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	copied := task
	return &copied, nil
}

// UpdateTask implements the TaskStore interface.
func (m *MockTaskStore) UpdateTask(ctx context.Context, task *domain.ProcessingTask) error {
	if m.UpdateTaskFn != nil {
		return m.UpdateTaskFn(ctx, task)
	}
	if m.UpdateError != nil {
		return m.UpdateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; !exists {
		return store.ErrTaskNotFound
	}
	m.tasks[task.ID] = *task
	return nil
}

// ListTasksByFile implements the TaskStore interface.
func (m *MockTaskStore) ListTasksByFile(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error) {
	if m.ListTasksByFileFn != nil {
		return m.ListTasksByFileFn(ctx, fileID)
	}

	return m.list(func(task domain.ProcessingTask) bool {
		return task.FileID == fileID
	}), nil
}

// ListTasksByBatch implements the TaskStore interface.
func (m *MockTaskStore) ListTasksByBatch(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error) {
	if m.ListTasksByBatchFn != nil {
		return m.ListTasksByBatchFn(ctx, batchID)
	}

	return m.list(func(task domain.ProcessingTask) bool {
		return task.BatchID == batchID
	}), nil
}

// ListTasksByStatus implements the TaskStore interface.
func (m *MockTaskStore) ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.ProcessingTask, error) {
	if m.ListTasksByStatusFn != nil {
		return m.ListTasksByStatusFn(ctx, status)
	}

	return m.list(func(task domain.ProcessingTask) bool {
		return task.Status == status
	}), nil
}

// WithTx implements the TaskStore interface for transaction support.
func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	// For mock purposes, just return the same mock
	return m
}

// list returns copies of every stored task matching the predicate, oldest first.
func (m *MockTaskStore) list(match func(domain.ProcessingTask) bool) []*domain.ProcessingTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.ProcessingTask
	for _, task := range m.tasks {
		if match(task) {
			copied := task
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
