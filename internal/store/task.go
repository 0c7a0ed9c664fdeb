package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/domain"
)

// TaskStore defines the persistence contract for processing tasks.
// The processing core assumes read-then-write updates keyed by task ID;
// at-least-once retry delivery plus the processor's status guard stand in
// for serializable transactions.
type TaskStore interface {
	// CreateTask persists a new task.
	CreateTask(ctx context.Context, task *domain.ProcessingTask) error

	// CreateTasks persists a group of new tasks atomically: either every
	// task is stored or none are.
	CreateTasks(ctx context.Context, tasks []*domain.ProcessingTask) error

	// GetTask retrieves a task by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error)

	// UpdateTask persists the task's current state.
	// Returns ErrTaskNotFound if the task does not exist.
	UpdateTask(ctx context.Context, task *domain.ProcessingTask) error

	// ListTasksByFile retrieves every task created for the given file.
	ListTasksByFile(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error)

	// ListTasksByBatch retrieves every task carrying the given batch ID.
	ListTasksByBatch(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error)

	// ListTasksByStatus retrieves every task currently in the given status,
	// oldest first.
	ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.ProcessingTask, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}

// ResultStore defines the persistence contract for processing results.
// A result is written exactly once, for a task that completed.
type ResultStore interface {
	// SaveResult persists a result. Returns ErrResultExists if the owning
	// task already has one.
	SaveResult(ctx context.Context, result *domain.ProcessingResult) error

	// GetResultByTaskID retrieves the result for the given task.
	// Returns ErrResultNotFound if no result exists.
	GetResultByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error)
}
