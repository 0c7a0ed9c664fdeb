package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the processing state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusRetrying   TaskStatus = "retrying"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants for the built-in analysis kinds.
const (
	// TaskTypeAnalyzeContent runs content analysis over the file.
	TaskTypeAnalyzeContent = "analyze_content"

	// TaskTypeExtractMetadata extracts structured metadata from the file.
	TaskTypeExtractMetadata = "extract_metadata"
)

// Common validation errors for ProcessingTask
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskFileID   = errors.New("task file ID cannot be empty")
	ErrEmptyTaskType     = errors.New("task type cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrNegativeRetry     = errors.New("retry count cannot be negative")
)

// ErrInvalidTransition is returned when a status change would violate the
// task state machine.
var ErrInvalidTransition = errors.New("invalid task status transition")

// ProcessingTask represents one unit of AI-analysis work tied to a single
// file and task type. Tasks are created queued, driven through the state
// machine by the processor and retry handler, and never deleted: a terminal
// status is the permanent record of the outcome.
type ProcessingTask struct {
	ID              uuid.UUID  `json:"id"`
	FileID          uuid.UUID  `json:"file_id"`
	TaskType        string     `json:"task_type"`
	Status          TaskStatus `json:"status"`
	RetryCount      int        `json:"retry_count"`
	LastRetryAt     *time.Time `json:"last_retry_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ConfidenceScore float64    `json:"confidence_score"`
	BatchID         string     `json:"batch_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewProcessingTask creates a new ProcessingTask for the given file and task
// type. It generates a new UUID for the task ID, sets the status to queued,
// and sets the creation timestamp. The batch ID is optional and may be empty.
// Returns an error if validation fails.
func NewProcessingTask(fileID uuid.UUID, taskType, batchID string) (*ProcessingTask, error) {
	task := &ProcessingTask{
		ID:        uuid.New(),
		FileID:    fileID,
		TaskType:  taskType,
		Status:    TaskStatusQueued,
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the ProcessingTask has valid data.
// Returns an error if any field fails validation.
func (t *ProcessingTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.FileID == uuid.Nil {
		return ErrEmptyTaskFileID
	}

	if t.TaskType == "" {
		return ErrEmptyTaskType
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.RetryCount < 0 {
		return ErrNegativeRetry
	}

	return nil
}

// IsTerminal reports whether the task has reached a permanent state.
// Completed and failed tasks never transition again.
func (t *ProcessingTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// TransitionTo updates the task's status, enforcing the state machine:
//
//	queued   -> processing | failed (cancellation)
//	processing -> completed | retrying | failed
//	retrying -> processing | failed (cancellation)
//
// Completed and failed are terminal. Returns ErrInvalidTransition if the
// change is not permitted.
func (t *ProcessingTask) TransitionTo(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}

	if !canTransition(t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}

	t.Status = status
	return nil
}

// MarkProcessing transitions the task to processing and records the start
// time. StartedAt is never set earlier than CreatedAt.
func (t *ProcessingTask) MarkProcessing(now time.Time) error {
	if err := t.TransitionTo(TaskStatusProcessing); err != nil {
		return err
	}

	if now.Before(t.CreatedAt) {
		now = t.CreatedAt
	}
	t.StartedAt = &now
	return nil
}

// MarkCompleted transitions the task to completed, recording the completion
// time and the confidence score reported by the analyzer.
func (t *ProcessingTask) MarkCompleted(now time.Time, confidence float64) error {
	if err := t.TransitionTo(TaskStatusCompleted); err != nil {
		return err
	}

	t.ConfidenceScore = confidence
	t.CompletedAt = &now
	return nil
}

// MarkRetrying transitions the task to retrying, incrementing the retry
// count and recording the failure that triggered it.
func (t *ProcessingTask) MarkRetrying(now time.Time, errorMessage string) error {
	if err := t.TransitionTo(TaskStatusRetrying); err != nil {
		return err
	}

	t.RetryCount++
	t.LastRetryAt = &now
	t.ErrorMessage = errorMessage
	return nil
}

// MarkFailed transitions the task to failed, recording the terminal error
// and completion time.
func (t *ProcessingTask) MarkFailed(now time.Time, errorMessage string) error {
	if err := t.TransitionTo(TaskStatusFailed); err != nil {
		return err
	}

	t.ErrorMessage = errorMessage
	t.CompletedAt = &now
	return nil
}

// canTransition reports whether the state machine permits moving from one
// status to another. Cancellation is the only path that skips processing.
func canTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusProcessing || to == TaskStatusFailed
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusRetrying || to == TaskStatusFailed
	case TaskStatusRetrying:
		return to == TaskStatusProcessing || to == TaskStatusFailed
	default:
		// completed and failed are terminal
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusRetrying, TaskStatusFailed:
		return true
	default:
		return false
	}
}
