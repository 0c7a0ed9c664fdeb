package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/events"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

// Common errors returned by the RetryHandler
var (
	ErrNilTaskStore  = errors.New("task store cannot be nil")
	ErrNilPublisher  = errors.New("event publisher cannot be nil")
	ErrNilPolicy     = errors.New("retry policy cannot be nil")
	ErrNilClassifier = errors.New("classifier cannot be nil")
)

// RetryHandlerConfig holds the bounds on failure recovery.
type RetryHandlerConfig struct {
	// MaxRetries is how many retry attempts a task gets before terminal failure.
	MaxRetries int

	// MaxRetryWindow is the maximum elapsed time since task creation during
	// which retries are permitted.
	MaxRetryWindow time.Duration
}

// DefaultRetryHandlerConfig returns a RetryHandlerConfig with reasonable defaults.
func DefaultRetryHandlerConfig() RetryHandlerConfig {
	return RetryHandlerConfig{
		MaxRetries:     3,
		MaxRetryWindow: 24 * time.Hour,
	}
}

// RetryHandler decides whether a failed task is worth retrying and drives
// the failure branch of the task state machine. Retriable failures move the
// task to retrying and schedule a delayed task_retry event; everything else
// fails the task terminally.
type RetryHandler struct {
	taskStore  store.TaskStore
	bus        events.Publisher
	policy     RetryPolicy
	classifier *Classifier
	config     RetryHandlerConfig
	logger     *slog.Logger
}

// NewRetryHandler creates a RetryHandler.
func NewRetryHandler(
	taskStore store.TaskStore,
	bus events.Publisher,
	policy RetryPolicy,
	classifier *Classifier,
	config RetryHandlerConfig,
	logger *slog.Logger,
) (*RetryHandler, error) {
	if taskStore == nil {
		return nil, ErrNilTaskStore
	}
	if bus == nil {
		return nil, ErrNilPublisher
	}
	if policy == nil {
		return nil, ErrNilPolicy
	}
	if classifier == nil {
		return nil, ErrNilClassifier
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &RetryHandler{
		taskStore:  taskStore,
		bus:        bus,
		policy:     policy,
		classifier: classifier,
		config:     config,
		logger:     logger.With("component", "retry_handler"),
	}, nil
}

// ShouldRetry reports whether the task has retry budget left for the given
// failure: false once the retry count is exhausted, the retry window has
// expired, or the classifier marks the error non-retriable.
func (h *RetryHandler) ShouldRetry(task *domain.ProcessingTask, failure error) bool {
	logger := h.logger.With("task_id", task.ID, "task_type", task.TaskType)

	if task.RetryCount >= h.config.MaxRetries {
		logger.Info("task exceeded max retries", "max_retries", h.config.MaxRetries)
		return false
	}

	if !h.withinRetryWindow(task) {
		logger.Info("task exceeded retry window", "max_retry_window", h.config.MaxRetryWindow)
		return false
	}

	if failure != nil {
		classification := h.classifier.ClassifyError(failure)
		if !classification.Retriable {
			logger.Info("task has non-retriable error",
				"reason", classification.Reason,
				"error_category", classification.Category)
			return false
		}
	}

	return true
}

// HandleFailure applies the failure to the task's state. If the task should
// be retried it moves to retrying, the retry count is incremented, and a
// task_retry event is scheduled after the policy's delay; HandleFailure then
// returns true. Otherwise the task is failed terminally and HandleFailure
// returns false so the caller can surface the terminal failure.
//
// The returned error reports persistence or publish problems, not the
// task's failure itself.
func (h *RetryHandler) HandleFailure(
	ctx context.Context,
	task *domain.ProcessingTask,
	failure error,
) (bool, error) {
	errorText := ""
	if failure != nil {
		errorText = failure.Error()
	}

	logger := h.logger.With("task_id", task.ID, "task_type", task.TaskType)
	now := time.Now().UTC()

	if !h.ShouldRetry(task, failure) {
		if err := task.MarkFailed(now, errorText); err != nil {
			return false, fmt.Errorf("failed to mark task failed: %w", err)
		}
		if err := h.taskStore.UpdateTask(ctx, task); err != nil {
			return false, fmt.Errorf("failed to persist failed task: %w", err)
		}

		logger.Error("task failed permanently",
			"retry_count", task.RetryCount,
			"error", errorText)
		return false, nil
	}

	if err := task.MarkRetrying(now, errorText); err != nil {
		return false, fmt.Errorf("failed to mark task retrying: %w", err)
	}

	// Delay is computed from the incremented count so the second attempt
	// waits longer than the first.
	delay := h.policy.Delay(task.RetryCount)

	if err := h.taskStore.UpdateTask(ctx, task); err != nil {
		return false, fmt.Errorf("failed to persist retrying task: %w", err)
	}

	classification := h.classifier.ClassifyError(failure)
	event, err := events.NewEvent(events.EventTaskRetry, events.TaskRetryPayload{
		TaskID:        task.ID,
		RetryCount:    task.RetryCount,
		Error:         errorText,
		ErrorCategory: string(classification.Category),
		Reason:        classification.Reason,
		DelaySeconds:  delay.Seconds(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create retry event: %w", err)
	}

	if err := h.bus.PublishAfter(ctx, event, delay); err != nil {
		return false, fmt.Errorf("failed to schedule retry event: %w", err)
	}

	logger.Info("task queued for retry",
		"retry_count", task.RetryCount,
		"max_retries", h.config.MaxRetries,
		"delay_seconds", delay.Seconds(),
		"error_category", classification.Category,
		"reason", classification.Reason)
	return true, nil
}

// withinRetryWindow checks if the task is still inside the allowed retry window.
func (h *RetryHandler) withinRetryWindow(task *domain.ProcessingTask) bool {
	if task.CreatedAt.IsZero() {
		return true
	}
	return time.Now().UTC().Sub(task.CreatedAt) <= h.config.MaxRetryWindow
}

// Policy exposes the handler's retry policy so the reconciliation sweep can
// compute when a scheduled retry was due.
func (h *RetryHandler) Policy() RetryPolicy {
	return h.policy
}
