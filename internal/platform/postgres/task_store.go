package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/platform/logger"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// taskColumns is the canonical column list shared by every task query.
const taskColumns = `id, file_id, task_type, status, retry_count, last_retry_at,
	error_message, confidence_score, batch_id, created_at, started_at, completed_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore. The db may be a
// *sql.DB or a *sql.Tx; see WithTx.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// CreateTask implements store.TaskStore.CreateTask
func (s *PostgresTaskStore) CreateTask(ctx context.Context, task *domain.ProcessingTask) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO processing_tasks
			(id, file_id, task_type, status, retry_count, last_retry_at,
			 error_message, confidence_score, batch_id, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.FileID,
		task.TaskType,
		task.Status,
		task.RetryCount,
		task.LastRetryAt,
		nullString(task.ErrorMessage),
		task.ConfidenceScore,
		nullString(task.BatchID),
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"task_type", task.TaskType,
			"error", err)
		return MapError(err)
	}

	return nil
}

// CreateTasks implements store.TaskStore.CreateTasks. When the store holds a
// plain connection the inserts run inside a single transaction, so a fan-out
// of tasks for one file is all-or-nothing. A store already bound to a
// transaction inserts directly into it.
func (s *PostgresTaskStore) CreateTasks(ctx context.Context, tasks []*domain.ProcessingTask) error {
	if len(tasks) == 0 {
		return nil
	}

	db, ok := s.db.(*sql.DB)
	if !ok {
		for _, task := range tasks {
			if err := s.CreateTask(ctx, task); err != nil {
				return err
			}
		}
		return nil
	}

	return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.WithTx(tx)
		for _, task := range tasks {
			if err := txStore.CreateTask(ctx, task); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTask implements store.TaskStore.GetTask
func (s *PostgresTaskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error) {
	query := `SELECT ` + taskColumns + ` FROM processing_tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
		}
		return nil, MapError(err)
	}

	return task, nil
}

// UpdateTask implements store.TaskStore.UpdateTask
func (s *PostgresTaskStore) UpdateTask(ctx context.Context, task *domain.ProcessingTask) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE processing_tasks
		SET status = $1, retry_count = $2, last_retry_at = $3, error_message = $4,
		    confidence_score = $5, started_at = $6, completed_at = $7
		WHERE id = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Status,
		task.RetryCount,
		task.LastRetryAt,
		nullString(task.ErrorMessage),
		task.ConfidenceScore,
		task.StartedAt,
		task.CompletedAt,
		task.ID,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", task.ID,
			"status", task.Status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, task.ID)
	}

	return nil
}

// ListTasksByFile implements store.TaskStore.ListTasksByFile
func (s *PostgresTaskStore) ListTasksByFile(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM processing_tasks
		WHERE file_id = $1
		ORDER BY created_at ASC`

	return s.listTasks(ctx, query, fileID)
}

// ListTasksByBatch implements store.TaskStore.ListTasksByBatch
func (s *PostgresTaskStore) ListTasksByBatch(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM processing_tasks
		WHERE batch_id = $1
		ORDER BY created_at ASC`

	return s.listTasks(ctx, query, batchID)
}

// ListTasksByStatus implements store.TaskStore.ListTasksByStatus
func (s *PostgresTaskStore) ListTasksByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.ProcessingTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM processing_tasks
		WHERE status = $1
		ORDER BY created_at ASC`

	return s.listTasks(ctx, query, status)
}

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db: tx,
	}
}

// listTasks runs a query returning task rows and scans them all.
func (s *PostgresTaskStore) listTasks(ctx context.Context, query string, args ...interface{}) ([]*domain.ProcessingTask, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.ProcessingTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", "error", err)
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", "error", err)
		return nil, MapError(err)
	}

	return tasks, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask reads one task row into a domain.ProcessingTask.
func scanTask(row rowScanner) (*domain.ProcessingTask, error) {
	var (
		task         domain.ProcessingTask
		errorMessage sql.NullString
		batchID      sql.NullString
		lastRetryAt  sql.NullTime
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.FileID,
		&task.TaskType,
		&task.Status,
		&task.RetryCount,
		&lastRetryAt,
		&errorMessage,
		&task.ConfidenceScore,
		&batchID,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ErrorMessage = errorMessage.String
	task.BatchID = batchID.String
	if lastRetryAt.Valid {
		t := lastRetryAt.Time
		task.LastRetryAt = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}

	return &task, nil
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
