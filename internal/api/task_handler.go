package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/api/shared"
	"github.com/nimbusvault/nimbus-api/internal/domain"
)

// TaskService is the processing surface the HTTP layer depends on. It is
// implemented by processor.Service.
type TaskService interface {
	ProcessFile(ctx context.Context, fileID uuid.UUID, taskTypes []string, batchID string) ([]*domain.ProcessingTask, error)
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error)
	GetTaskResult(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error)
	ListFileTasks(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error)
	ListBatchTasks(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error)
	CancelTask(ctx context.Context, taskID uuid.UUID) error
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	service   TaskService
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(service TaskService) *TaskHandler {
	return &TaskHandler{
		service:   service,
		validator: validator.New(),
	}
}

// ProcessFile handles POST /files/{fileID}/process requests. It queues the
// requested analyses and returns 202 Accepted: processing is asynchronous and
// the returned tasks carry the IDs to poll.
func (h *TaskHandler) ProcessFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.parseUUIDParam(w, r, "fileID")
	if !ok {
		return
	}

	// An empty body is allowed and means "run the default analyses".
	var req ProcessFileRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	tasks, err := h.service.ProcessFile(r.Context(), fileID, req.TaskTypes, req.BatchID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, tasksToResponse(tasks))
}

// GetTask handles GET /tasks/{taskID} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.parseUUIDParam(w, r, "taskID")
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// GetTaskResult handles GET /tasks/{taskID}/result requests.
func (h *TaskHandler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.parseUUIDParam(w, r, "taskID")
	if !ok {
		return
	}

	result, err := h.service.GetTaskResult(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resultToResponse(result))
}

// CancelTask handles POST /tasks/{taskID}/cancel requests. Only queued and
// retrying tasks can be cancelled; anything else responds 409.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.parseUUIDParam(w, r, "taskID")
	if !ok {
		return
	}

	if err := h.service.CancelTask(r.Context(), taskID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListFileTasks handles GET /files/{fileID}/tasks requests.
func (h *TaskHandler) ListFileTasks(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.parseUUIDParam(w, r, "fileID")
	if !ok {
		return
	}

	tasks, err := h.service.ListFileTasks(r.Context(), fileID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// ListBatchTasks handles GET /batches/{batchID}/tasks requests.
func (h *TaskHandler) ListBatchTasks(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Batch ID is required")
		return
	}

	tasks, err := h.service.ListBatchTasks(r.Context(), batchID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// Routes mounts the task endpoints on a chi router.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/files/{fileID}/process", h.ProcessFile)
	r.Get("/files/{fileID}/tasks", h.ListFileTasks)
	r.Get("/tasks/{taskID}", h.GetTask)
	r.Get("/tasks/{taskID}/result", h.GetTaskResult)
	r.Post("/tasks/{taskID}/cancel", h.CancelTask)
	r.Get("/batches/{batchID}/tasks", h.ListBatchTasks)
}

// parseUUIDParam extracts and parses a UUID path parameter, responding with
// 400 on failure.
func (h *TaskHandler) parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
