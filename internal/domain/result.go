package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for ProcessingResult
var (
	ErrEmptyResultID     = errors.New("result ID cannot be empty")
	ErrEmptyResultTaskID = errors.New("result task ID cannot be empty")
	ErrEmptyResultType   = errors.New("result type cannot be empty")
	ErrEmptyResultData   = errors.New("result data cannot be empty")
)

// ProcessingResult holds the outcome of exactly one completed task. At most
// one result exists per task, created once after a successful analyzer
// invocation and never mutated.
type ProcessingResult struct {
	ID              uuid.UUID       `json:"id"`
	TaskID          uuid.UUID       `json:"task_id"`
	ResultType      string          `json:"result_type"`
	ResultData      json.RawMessage `json:"result_data"`
	ConfidenceScore float64         `json:"confidence_score"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewProcessingResult creates a ProcessingResult for the given task from the
// analyzer's payload. Returns an error if validation fails.
func NewProcessingResult(
	taskID uuid.UUID,
	resultType string,
	data json.RawMessage,
	confidence float64,
) (*ProcessingResult, error) {
	result := &ProcessingResult{
		ID:              uuid.New(),
		TaskID:          taskID,
		ResultType:      resultType,
		ResultData:      data,
		ConfidenceScore: confidence,
		CreatedAt:       time.Now().UTC(),
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return result, nil
}

// Validate checks if the ProcessingResult has valid data.
func (r *ProcessingResult) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyResultID
	}

	if r.TaskID == uuid.Nil {
		return ErrEmptyResultTaskID
	}

	if r.ResultType == "" {
		return ErrEmptyResultType
	}

	if len(r.ResultData) == 0 {
		return ErrEmptyResultData
	}

	return nil
}
