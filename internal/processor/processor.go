package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/analysis"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/events"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// Common errors returned by the TaskProcessor
var (
	ErrNilResultStore  = errors.New("result store cannot be nil")
	ErrNilAnalyzer     = errors.New("analyzer cannot be nil")
	ErrNilRetryHandler = errors.New("retry handler cannot be nil")
	ErrNilLogger       = errors.New("logger cannot be nil")
)

// TaskProcessor owns the full life cycle of one task execution: it drives
// the task through the state machine, invokes the content analyzer,
// persists the result, and delegates failures to the RetryHandler.
//
// Every analyzer fault is caught here and converted into a state transition
// plus an event; nothing escapes to the caller as an unhandled fault. The
// task's own record is the permanent record of outcome.
type TaskProcessor struct {
	taskStore   store.TaskStore
	resultStore store.ResultStore
	analyzer    analysis.Analyzer
	retry       *RetryHandler
	bus         events.Publisher
	logger      *slog.Logger
}

// NewTaskProcessor creates a TaskProcessor.
func NewTaskProcessor(
	taskStore store.TaskStore,
	resultStore store.ResultStore,
	analyzer analysis.Analyzer,
	retry *RetryHandler,
	bus events.Publisher,
	logger *slog.Logger,
) (*TaskProcessor, error) {
	if taskStore == nil {
		return nil, ErrNilTaskStore
	}
	if resultStore == nil {
		return nil, ErrNilResultStore
	}
	if analyzer == nil {
		return nil, ErrNilAnalyzer
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

	return &TaskProcessor{
		taskStore:   taskStore,
		resultStore: resultStore,
		analyzer:    analyzer,
		retry:       retry,
		bus:         bus,
		logger:      logger.With("component", "task_processor"),
	}, nil
}

// ProcessTask executes one attempt of the given task.
//
// The task is re-read from the store first and the attempt silently no-ops
// if the current record is already terminal. Retry events are at-least-once
// and not cancellable once scheduled, so this guard is what keeps a stale
// scheduled retry from reviving a cancelled or completed task.
func (p *TaskProcessor) ProcessTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := p.taskStore.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	logger := p.logger.With(
		"task_id", task.ID,
		"task_type", task.TaskType,
		"file_id", task.FileID,
	)

	// Idempotence guard: re-check current status before doing any work.
	if task.IsTerminal() {
		logger.Debug("skipping task in terminal status", "status", task.Status)
		return nil
	}
	if task.Status == domain.TaskStatusProcessing {
		logger.Warn("task already has an in-flight execution, skipping")
		return nil
	}

	now := time.Now().UTC()
	if err := task.MarkProcessing(now); err != nil {
		return fmt.Errorf("failed to mark task processing: %w", err)
	}
	if err := p.taskStore.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to persist processing task: %w", err)
	}

	logger.Info("processing task", "retry_count", task.RetryCount)

	result, err := p.analyzer.Analyze(ctx, task.TaskType, task.FileID)
	if err != nil {
		return p.handleFailure(ctx, task, err, logger)
	}
	if result == nil || len(result.Data) == 0 {
		return p.handleFailure(ctx, task, analysis.ErrEmptyResult, logger)
	}

	processingResult, err := domain.NewProcessingResult(
		task.ID,
		task.TaskType,
		result.Data,
		result.Confidence,
	)
	if err != nil {
		return p.handleFailure(ctx, task, fmt.Errorf("invalid analyzer result: %w", err), logger)
	}

	if err := p.resultStore.SaveResult(ctx, processingResult); err != nil {
		if errors.Is(err, store.ErrResultExists) {
			// A previous attempt already recorded the outcome; treat this
			// execution as a duplicate delivery and stop without a second
			// result or event.
			logger.Warn("result already exists for task, skipping duplicate completion")
			return nil
		}
		return p.handleFailure(ctx, task, fmt.Errorf("failed to save result: %w", err), logger)
	}

	if err := task.MarkCompleted(time.Now().UTC(), result.Confidence); err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	if err := p.taskStore.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to persist completed task: %w", err)
	}

	event, err := events.NewEvent(events.EventTaskCompleted, events.TaskCompletedPayload{
		TaskID:     task.ID,
		FileID:     task.FileID,
		TaskType:   task.TaskType,
		Confidence: task.ConfidenceScore,
	})
	if err != nil {
		logger.Error("failed to create completion event", "error", err)
		return nil
	}
	if err := p.bus.Publish(ctx, event); err != nil {
		logger.Error("failed to publish completion event", "error", err)
	}

	logger.Info("task completed", "confidence", task.ConfidenceScore, "retry_count", task.RetryCount)
	return nil
}

// handleFailure delegates to the RetryHandler and publishes task_failed when
// the failure turned out to be terminal.
func (p *TaskProcessor) handleFailure(
	ctx context.Context,
	task *domain.ProcessingTask,
	failure error,
	logger *slog.Logger,
) error {
	logger.Error("task processing failed", "error", failure, "retry_count", task.RetryCount)

	retried, err := p.retry.HandleFailure(ctx, task, failure)
	if err != nil {
		return fmt.Errorf("failed to handle task failure: %w", err)
	}
	if retried {
		return nil
	}

	event, err := events.NewEvent(events.EventTaskFailed, events.TaskFailedPayload{
		TaskID:     task.ID,
		FileID:     task.FileID,
		Error:      failure.Error(),
		RetryCount: task.RetryCount,
	})
	if err != nil {
		logger.Error("failed to create failure event", "error", err)
		return nil
	}
	if err := p.bus.Publish(ctx, event); err != nil {
		logger.Error("failed to publish failure event", "error", err)
	}

	return nil
}
