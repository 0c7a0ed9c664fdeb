package api

import (
	"encoding/json"
	"time"

	"github.com/nimbusvault/nimbus-api/internal/domain"
)

// Common request/response structures

// ProcessFileRequest defines the payload for the file processing endpoint.
// TaskTypes is optional; when empty, the configured default analyses run.
type ProcessFileRequest struct {
	TaskTypes []string `json:"task_types" validate:"omitempty,dive,required"`
	BatchID   string   `json:"batch_id"   validate:"omitempty,max=255"`
}

// TaskResponse represents one processing task in API responses.
type TaskResponse struct {
	ID              string     `json:"id"`
	FileID          string     `json:"file_id"`
	TaskType        string     `json:"task_type"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	LastRetryAt     *time.Time `json:"last_retry_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ConfidenceScore float64    `json:"confidence_score"`
	BatchID         string     `json:"batch_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// TaskListResponse wraps a list of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// ResultResponse represents a completed task's analysis result.
type ResultResponse struct {
	ID              string          `json:"id"`
	TaskID          string          `json:"task_id"`
	ResultType      string          `json:"result_type"`
	ResultData      json.RawMessage `json:"result_data"`
	ConfidenceScore float64         `json:"confidence_score"`
	CreatedAt       time.Time       `json:"created_at"`
}

// taskToResponse converts a domain.ProcessingTask to a TaskResponse.
func taskToResponse(task *domain.ProcessingTask) TaskResponse {
	return TaskResponse{
		ID:              task.ID.String(),
		FileID:          task.FileID.String(),
		TaskType:        task.TaskType,
		Status:          string(task.Status),
		RetryCount:      task.RetryCount,
		LastRetryAt:     task.LastRetryAt,
		ErrorMessage:    task.ErrorMessage,
		ConfidenceScore: task.ConfidenceScore,
		BatchID:         task.BatchID,
		CreatedAt:       task.CreatedAt,
		StartedAt:       task.StartedAt,
		CompletedAt:     task.CompletedAt,
	}
}

// tasksToResponse converts a slice of tasks to a TaskListResponse.
func tasksToResponse(tasks []*domain.ProcessingTask) TaskListResponse {
	out := TaskListResponse{Tasks: make([]TaskResponse, 0, len(tasks))}
	for _, task := range tasks {
		out.Tasks = append(out.Tasks, taskToResponse(task))
	}
	return out
}

// resultToResponse converts a domain.ProcessingResult to a ResultResponse.
func resultToResponse(result *domain.ProcessingResult) ResultResponse {
	return ResultResponse{
		ID:              result.ID.String(),
		TaskID:          result.TaskID.String(),
		ResultType:      result.ResultType,
		ResultData:      result.ResultData,
		ConfidenceScore: result.ConfidenceScore,
		CreatedAt:       result.CreatedAt,
	}
}
