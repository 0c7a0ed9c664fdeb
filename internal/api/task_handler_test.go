package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/nimbusvault/nimbus-api/internal/api"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// stubTaskService implements api.TaskService with function fields.
type stubTaskService struct {
	ProcessFileFn    func(ctx context.Context, fileID uuid.UUID, taskTypes []string, batchID string) ([]*domain.ProcessingTask, error)
	GetTaskFn        func(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error)
	GetTaskResultFn  func(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error)
	ListFileTasksFn  func(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error)
	ListBatchTasksFn func(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error)
	CancelTaskFn     func(ctx context.Context, taskID uuid.UUID) error
}

func (s *stubTaskService) ProcessFile(ctx context.Context, fileID uuid.UUID, taskTypes []string, batchID string) ([]*domain.ProcessingTask, error) {
	return s.ProcessFileFn(ctx, fileID, taskTypes, batchID)
}

func (s *stubTaskService) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error) {
	return s.GetTaskFn(ctx, taskID)
}

func (s *stubTaskService) GetTaskResult(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error) {
	return s.GetTaskResultFn(ctx, taskID)
}

func (s *stubTaskService) ListFileTasks(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error) {
	return s.ListFileTasksFn(ctx, fileID)
}

func (s *stubTaskService) ListBatchTasks(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error) {
	return s.ListBatchTasksFn(ctx, batchID)
}

func (s *stubTaskService) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	return s.CancelTaskFn(ctx, taskID)
}

func newTestRouter(service api.TaskService) http.Handler {
	r := chi.NewRouter()
	api.NewTaskHandler(service).Routes(r)
	return r
}

func mustNewTask(t *testing.T, fileID uuid.UUID) *domain.ProcessingTask {
	t.Helper()
	task, err := domain.NewProcessingTask(fileID, domain.TaskTypeAnalyzeContent, "batch-1")
	require.NoError(t, err)
	return task
}

func TestProcessFileEndpoint(t *testing.T) {
	t.Parallel()

	fileID := uuid.New()
	task := mustNewTask(t, fileID)

	service := &stubTaskService{
		ProcessFileFn: func(ctx context.Context, gotFileID uuid.UUID, taskTypes []string, batchID string) ([]*domain.ProcessingTask, error) {
			assert.Equal(t, fileID, gotFileID)
			assert.Equal(t, []string{domain.TaskTypeAnalyzeContent}, taskTypes)
			assert.Equal(t, "batch-1", batchID)
			return []*domain.ProcessingTask{task}, nil
		},
	}
	router := newTestRouter(service)

	body, err := json.Marshal(api.ProcessFileRequest{
		TaskTypes: []string{domain.TaskTypeAnalyzeContent},
		BatchID:   "batch-1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/files/%s/process", fileID), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, task.ID.String(), resp.Tasks[0].ID)
	assert.Equal(t, string(domain.TaskStatusQueued), resp.Tasks[0].Status)
}

func TestProcessFileEndpointEmptyBody(t *testing.T) {
	t.Parallel()

	fileID := uuid.New()
	service := &stubTaskService{
		ProcessFileFn: func(ctx context.Context, gotFileID uuid.UUID, taskTypes []string, batchID string) ([]*domain.ProcessingTask, error) {
			assert.Empty(t, taskTypes)
			return []*domain.ProcessingTask{mustNewTask(t, gotFileID)}, nil
		},
	}
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/files/%s/process", fileID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestProcessFileEndpointInvalidFileID(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubTaskService{})

	req := httptest.NewRequest(http.MethodPost, "/files/not-a-uuid/process", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskEndpoint(t *testing.T) {
	t.Parallel()

	task := mustNewTask(t, uuid.New())

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		service := &stubTaskService{
			GetTaskFn: func(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error) {
				assert.Equal(t, task.ID, taskID)
				return task, nil
			},
		}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet, "/tasks/"+task.ID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp api.TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, task.ID.String(), resp.ID)
		assert.Equal(t, task.FileID.String(), resp.FileID)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		service := &stubTaskService{
			GetTaskFn: func(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error) {
				return nil, store.ErrTaskNotFound
			},
		}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet, "/tasks/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Task not found")
	})
}

func TestGetTaskResultEndpoint(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	result, err := domain.NewProcessingResult(taskID, domain.TaskTypeAnalyzeContent, []byte(`{"summary":"ok"}`), 0.9)
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		t.Parallel()

		service := &stubTaskService{
			GetTaskResultFn: func(ctx context.Context, gotTaskID uuid.UUID) (*domain.ProcessingResult, error) {
				return result, nil
			},
		}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tasks/%s/result", taskID), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp api.ResultResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, taskID.String(), resp.TaskID)
		assert.JSONEq(t, `{"summary":"ok"}`, string(resp.ResultData))
	})

	t.Run("no result yet", func(t *testing.T) {
		t.Parallel()

		service := &stubTaskService{
			GetTaskResultFn: func(ctx context.Context, gotTaskID uuid.UUID) (*domain.ProcessingResult, error) {
				return nil, store.ErrResultNotFound
			},
		}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/tasks/%s/result", taskID), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCancelTaskEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("cancellable", func(t *testing.T) {
		t.Parallel()

		task := mustNewTask(t, uuid.New())
		service := &stubTaskService{
			CancelTaskFn: func(ctx context.Context, taskID uuid.UUID) error {
				now := time.Now().UTC()
				return task.MarkFailed(now, "task cancelled")
			},
			GetTaskFn: func(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error) {
				return task, nil
			},
		}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/tasks/%s/cancel", task.ID), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp api.TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(domain.TaskStatusFailed), resp.Status)
		assert.Equal(t, "task cancelled", resp.ErrorMessage)
	})

	t.Run("already terminal", func(t *testing.T) {
		t.Parallel()

		service := &stubTaskService{
			CancelTaskFn: func(ctx context.Context, taskID uuid.UUID) error {
				return fmt.Errorf("%w: status completed", domain.ErrTaskNotCancellable)
			},
		}
		router := newTestRouter(service)

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/tasks/%s/cancel", uuid.New()), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestListTaskEndpoints(t *testing.T) {
	t.Parallel()

	fileID := uuid.New()
	tasks := []*domain.ProcessingTask{mustNewTask(t, fileID), mustNewTask(t, fileID)}

	service := &stubTaskService{
		ListFileTasksFn: func(ctx context.Context, gotFileID uuid.UUID) ([]*domain.ProcessingTask, error) {
			assert.Equal(t, fileID, gotFileID)
			return tasks, nil
		},
		ListBatchTasksFn: func(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error) {
			assert.Equal(t, "batch-1", batchID)
			return tasks, nil
		},
	}
	router := newTestRouter(service)

	t.Run("by file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/files/%s/tasks", fileID), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp api.TaskListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Tasks, 2)
	})

	t.Run("by batch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/batches/batch-1/tasks", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp api.TaskListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Tasks, 2)
	})
}
