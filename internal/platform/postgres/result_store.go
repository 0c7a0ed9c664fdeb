package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/platform/logger"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// PostgresResultStore implements the store.ResultStore interface using
// PostgreSQL. The unique index on task_id enforces one result per task.
type PostgresResultStore struct {
	db store.DBTX
}

// NewPostgresResultStore creates a new PostgresResultStore.
func NewPostgresResultStore(db store.DBTX) *PostgresResultStore {
	return &PostgresResultStore{
		db: db,
	}
}

// Ensure PostgresResultStore implements store.ResultStore
var _ store.ResultStore = (*PostgresResultStore)(nil)

// SaveResult implements store.ResultStore.SaveResult
func (s *PostgresResultStore) SaveResult(ctx context.Context, result *domain.ProcessingResult) error {
	log := logger.FromContext(ctx)

	if err := result.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO processing_results
			(id, task_id, result_type, result_data, confidence_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.TaskID,
		result.ResultType,
		[]byte(result.ResultData),
		result.ConfidenceScore,
		result.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: task %s", store.ErrResultExists, result.TaskID)
		}
		log.Error("failed to save result",
			"result_id", result.ID,
			"task_id", result.TaskID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetResultByTaskID implements store.ResultStore.GetResultByTaskID
func (s *PostgresResultStore) GetResultByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error) {
	query := `
		SELECT id, task_id, result_type, result_data, confidence_score, created_at
		FROM processing_results
		WHERE task_id = $1
	`

	var (
		result domain.ProcessingResult
		data   []byte
	)
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&result.ID,
		&result.TaskID,
		&result.ResultType,
		&data,
		&result.ConfidenceScore,
		&result.CreatedAt,
	)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, fmt.Errorf("%w: task %s", store.ErrResultNotFound, taskID)
		}
		return nil, MapError(err)
	}

	result.ResultData = json.RawMessage(data)
	return &result, nil
}
