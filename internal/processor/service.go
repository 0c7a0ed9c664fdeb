package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/events"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// ErrNilProcessor is returned when a Service is constructed without a processor.
var ErrNilProcessor = errors.New("task processor cannot be nil")

// cancelledMessage is recorded on tasks failed by an explicit cancel request.
const cancelledMessage = "task cancelled"

// eventBus is the Service's view of the event bus: it both publishes and
// subscribes.
type eventBus interface {
	events.Publisher
	Subscribe(eventType string, handler events.Handler)
}

// ServiceConfig holds configuration for the processing service.
type ServiceConfig struct {
	// DefaultTaskTypes are queued for uploads that do not name their own.
	DefaultTaskTypes []string

	// ReconcileInterval is how often to sweep for tasks whose scheduled
	// retry was lost. Zero disables the sweep.
	ReconcileInterval time.Duration
}

// DefaultServiceConfig returns a ServiceConfig with reasonable defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultTaskTypes:  []string{domain.TaskTypeAnalyzeContent, domain.TaskTypeExtractMetadata},
		ReconcileInterval: time.Minute,
	}
}

// Service is the entry point of the processing subsystem. It reacts to
// file_uploaded events by fanning out one task per requested analysis type,
// executes tasks on task_queued and task_retry events, answers status
// queries, handles cancellation, and runs the reconciliation sweep that
// re-fires retries whose in-memory schedule was lost.
type Service struct {
	taskStore   store.TaskStore
	resultStore store.ResultStore
	processor   *TaskProcessor
	retry       *RetryHandler
	bus         eventBus
	config      ServiceConfig
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a Service. Call Start to subscribe it to the bus and
// begin the reconciliation sweep.
func NewService(
	taskStore store.TaskStore,
	resultStore store.ResultStore,
	proc *TaskProcessor,
	retry *RetryHandler,
	bus eventBus,
	config ServiceConfig,
	logger *slog.Logger,
) (*Service, error) {
	if taskStore == nil {
		return nil, ErrNilTaskStore
	}
	if resultStore == nil {
		return nil, ErrNilResultStore
	}
	if proc == nil {
		return nil, ErrNilProcessor
	}
	if retry == nil {
		return nil, ErrNilRetryHandler
	}
	if bus == nil {
		return nil, ErrNilPublisher
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	if len(config.DefaultTaskTypes) == 0 {
		config.DefaultTaskTypes = DefaultServiceConfig().DefaultTaskTypes
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		taskStore:   taskStore,
		resultStore: resultStore,
		processor:   proc,
		retry:       retry,
		bus:         bus,
		config:      config,
		logger:      logger.With("component", "processor_service"),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start subscribes the service to the events it consumes and begins the
// reconciliation sweep.
func (s *Service) Start() {
	s.bus.Subscribe(events.EventFileUploaded, events.HandlerFunc(s.handleFileUploaded))
	s.bus.Subscribe(events.EventTaskQueued, events.HandlerFunc(s.handleTaskQueued))
	s.bus.Subscribe(events.EventTaskRetry, events.HandlerFunc(s.handleTaskRetry))

	if s.config.ReconcileInterval > 0 {
		s.wg.Add(1)
		go s.reconcileLoop()
	}

	s.logger.Info("processor service started",
		"default_task_types", s.config.DefaultTaskTypes,
		"reconcile_interval", s.config.ReconcileInterval)
}

// Stop halts the reconciliation sweep and waits for it to finish.
// In-flight task executions run to completion on their own contexts.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("processor service stopped")
}

// ProcessFile creates one queued task per requested analysis type for the
// file and publishes a task_queued event for each. When taskTypes is empty
// the configured defaults apply. The batch ID is optional grouping metadata.
func (s *Service) ProcessFile(
	ctx context.Context,
	fileID uuid.UUID,
	taskTypes []string,
	batchID string,
) ([]*domain.ProcessingTask, error) {
	if len(taskTypes) == 0 {
		taskTypes = s.config.DefaultTaskTypes
	}

	tasks := make([]*domain.ProcessingTask, 0, len(taskTypes))
	for _, taskType := range taskTypes {
		task, err := domain.NewProcessingTask(fileID, taskType, batchID)
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		tasks = append(tasks, task)
	}

	// The fan-out is atomic: a file either has all its requested tasks
	// queued or none. The reconciliation sweep picks up any task whose
	// queued event is lost after the commit.
	if err := s.taskStore.CreateTasks(ctx, tasks); err != nil {
		return nil, fmt.Errorf("failed to persist tasks: %w", err)
	}

	for _, task := range tasks {
		event, err := events.NewEvent(events.EventTaskQueued, events.TaskQueuedPayload{
			TaskID:   task.ID,
			FileID:   fileID,
			TaskType: task.TaskType,
			BatchID:  batchID,
		})
		if err != nil {
			return tasks, fmt.Errorf("failed to create queued event: %w", err)
		}
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish queued event",
				"error", err,
				"task_id", task.ID,
				"task_type", task.TaskType)
		}
	}

	s.logger.Info("queued processing tasks",
		"file_id", fileID,
		"task_count", len(tasks),
		"batch_id", batchID)
	return tasks, nil
}

// GetTask returns the current state of a task.
func (s *Service) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingTask, error) {
	return s.taskStore.GetTask(ctx, taskID)
}

// GetTaskResult returns the result of a completed task.
func (s *Service) GetTaskResult(ctx context.Context, taskID uuid.UUID) (*domain.ProcessingResult, error) {
	return s.resultStore.GetResultByTaskID(ctx, taskID)
}

// ListFileTasks returns every task created for the given file.
func (s *Service) ListFileTasks(ctx context.Context, fileID uuid.UUID) ([]*domain.ProcessingTask, error) {
	return s.taskStore.ListTasksByFile(ctx, fileID)
}

// ListBatchTasks returns every task in the given batch.
func (s *Service) ListBatchTasks(ctx context.Context, batchID string) ([]*domain.ProcessingTask, error) {
	return s.taskStore.ListTasksByBatch(ctx, batchID)
}

// CancelTask fails a queued or retrying task. Tasks that are already
// processing or terminal cannot be cancelled; a retry already scheduled for
// a cancelled task is neutralized by the processor's status guard.
func (s *Service) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.taskStore.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status != domain.TaskStatusQueued && task.Status != domain.TaskStatusRetrying {
		return fmt.Errorf("%w: status %s", domain.ErrTaskNotCancellable, task.Status)
	}

	if err := task.MarkFailed(time.Now().UTC(), cancelledMessage); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	if err := s.taskStore.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to persist cancelled task: %w", err)
	}

	event, err := events.NewEvent(events.EventTaskFailed, events.TaskFailedPayload{
		TaskID:     task.ID,
		FileID:     task.FileID,
		Error:      cancelledMessage,
		RetryCount: task.RetryCount,
	})
	if err == nil {
		if publishErr := s.bus.Publish(ctx, event); publishErr != nil {
			s.logger.Error("failed to publish cancellation event",
				"error", publishErr,
				"task_id", task.ID)
		}
	}

	s.logger.Info("task cancelled", "task_id", task.ID, "task_type", task.TaskType)
	return nil
}

// handleFileUploaded reacts to upload completion by creating the requested
// analysis tasks.
func (s *Service) handleFileUploaded(ctx context.Context, event *events.Event) error {
	var payload events.FileUploadedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal file_uploaded payload: %w", err)
	}

	if _, err := s.ProcessFile(ctx, payload.FileID, payload.TaskTypes, payload.BatchID); err != nil {
		s.logger.Error("failed to handle file_uploaded event",
			"error", err,
			"file_id", payload.FileID,
			"event_id", event.ID)
		return err
	}
	return nil
}

// handleTaskQueued executes a freshly queued task.
func (s *Service) handleTaskQueued(ctx context.Context, event *events.Event) error {
	var payload events.TaskQueuedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal task_queued payload: %w", err)
	}

	return s.runTask(ctx, payload.TaskID, event.ID)
}

// handleTaskRetry executes a task whose backoff delay has elapsed.
func (s *Service) handleTaskRetry(ctx context.Context, event *events.Event) error {
	var payload events.TaskRetryPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal task_retry payload: %w", err)
	}

	return s.runTask(ctx, payload.TaskID, event.ID)
}

// runTask executes one attempt, logging the absent-task case instead of
// treating it as a state-machine failure.
func (s *Service) runTask(ctx context.Context, taskID uuid.UUID, eventID uuid.UUID) error {
	if err := s.processor.ProcessTask(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			s.logger.Error("task not found for execution",
				"task_id", taskID,
				"event_id", eventID)
			return nil
		}
		return err
	}
	return nil
}

// reconcileLoop periodically re-fires tasks stuck in retrying because their
// scheduled retry event was lost (delayed publishes are non-durable).
func (s *Service) reconcileLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			if err := s.reconcileOnce(s.ctx); err != nil {
				s.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// reconcileOnce re-fires retrying tasks whose computed due time has passed
// and queued tasks old enough that their task_queued event is evidently
// lost. Duplicated executions are harmless: every attempt goes through the
// processor's status guard.
func (s *Service) reconcileOnce(ctx context.Context) error {
	retrying, err := s.taskStore.ListTasksByStatus(ctx, domain.TaskStatusRetrying)
	if err != nil {
		return fmt.Errorf("failed to list retrying tasks: %w", err)
	}

	now := time.Now().UTC()
	refired := 0
	for _, task := range retrying {
		if task.LastRetryAt == nil {
			continue
		}
		due := task.LastRetryAt.Add(s.retry.Policy().Delay(task.RetryCount))
		if now.Before(due) {
			continue
		}

		s.logger.Info("re-firing overdue retry",
			"task_id", task.ID,
			"retry_count", task.RetryCount,
			"last_retry_at", task.LastRetryAt)
		if err := s.runTask(ctx, task.ID, uuid.Nil); err != nil {
			s.logger.Error("failed to re-fire retry", "error", err, "task_id", task.ID)
		}
		refired++
	}

	queued, err := s.taskStore.ListTasksByStatus(ctx, domain.TaskStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued tasks: %w", err)
	}

	for _, task := range queued {
		if now.Sub(task.CreatedAt) < s.config.ReconcileInterval {
			continue
		}

		s.logger.Info("re-firing stale queued task",
			"task_id", task.ID,
			"created_at", task.CreatedAt)
		if err := s.runTask(ctx, task.ID, uuid.Nil); err != nil {
			s.logger.Error("failed to re-fire queued task", "error", err, "task_id", task.ID)
		}
		refired++
	}

	if refired > 0 {
		s.logger.Info("reconciliation sweep re-fired tasks", "count", refired)
	}
	return nil
}
