package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/nimbusvault/nimbus-api/internal/analysis"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/events"
	"github.com/nimbusvault/nimbus-api/internal/mocks"
)

// capturePublisher records published events instead of delivering them, so
// tests can drive redelivery explicitly.
type capturePublisher struct {
	mu        sync.Mutex
	published []*events.Event
	scheduled []scheduledEvent
}

type scheduledEvent struct {
	event *events.Event
	delay time.Duration
}

func (p *capturePublisher) Publish(ctx context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return nil
}

func (p *capturePublisher) PublishAfter(ctx context.Context, event *events.Event, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduled = append(p.scheduled, scheduledEvent{event: event, delay: delay})
	return nil
}

func (p *capturePublisher) publishedOfType(eventType string) []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.Event
	for _, e := range p.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRetryHandler(t *testing.T, taskStore *mocks.MockTaskStore, bus events.Publisher) *RetryHandler {
	t.Helper()

	policy := NewExponentialBackoff()
	policy.rnd = fixedRand(0.5)

	handler, err := NewRetryHandler(
		taskStore,
		bus,
		policy,
		NewClassifier(),
		DefaultRetryHandlerConfig(),
		testLogger(),
	)
	require.NoError(t, err)
	return handler
}

func newQueuedTask(t *testing.T, taskStore *mocks.MockTaskStore) *domain.ProcessingTask {
	t.Helper()

	task, err := domain.NewProcessingTask(uuid.New(), domain.TaskTypeAnalyzeContent, "")
	require.NoError(t, err)
	require.NoError(t, taskStore.CreateTask(context.Background(), task))
	return task
}

func TestRetryHandlerShouldRetry(t *testing.T) {
	t.Parallel()

	taskStore := mocks.NewMockTaskStore()
	handler := newTestRetryHandler(t, taskStore, &capturePublisher{})

	t.Run("transient error with budget left", func(t *testing.T) {
		task := newQueuedTask(t, taskStore)
		assert.True(t, handler.ShouldRetry(task, errors.New("request timeout")))
	})

	t.Run("unknown error is retried", func(t *testing.T) {
		task := newQueuedTask(t, taskStore)
		assert.True(t, handler.ShouldRetry(task, errors.New("mystery failure")))
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		task := newQueuedTask(t, taskStore)
		assert.False(t, handler.ShouldRetry(task, errors.New("permission denied")))
	})

	t.Run("retry count exhausted", func(t *testing.T) {
		task := newQueuedTask(t, taskStore)
		task.RetryCount = 3
		assert.False(t, handler.ShouldRetry(task, errors.New("request timeout")))
	})

	t.Run("retry window expired", func(t *testing.T) {
		task := newQueuedTask(t, taskStore)
		task.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
		assert.False(t, handler.ShouldRetry(task, errors.New("request timeout")))
	})
}

func TestRetryHandlerHandleFailureRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	taskStore := mocks.NewMockTaskStore()
	bus := &capturePublisher{}
	handler := newTestRetryHandler(t, taskStore, bus)

	task := newQueuedTask(t, taskStore)
	require.NoError(t, task.MarkProcessing(time.Now().UTC()))
	require.NoError(t, taskStore.UpdateTask(ctx, task))

	retried, err := handler.HandleFailure(ctx, task, errors.New("503 service unavailable"))
	require.NoError(t, err)
	assert.True(t, retried)

	stored, err := taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.NotNil(t, stored.LastRetryAt)
	assert.Equal(t, "503 service unavailable", stored.ErrorMessage)

	require.Len(t, bus.scheduled, 1)
	// Delay is computed from the incremented count: 1s * 2^1, no jitter.
	assert.Equal(t, 2*time.Second, bus.scheduled[0].delay)

	var payload events.TaskRetryPayload
	require.NoError(t, bus.scheduled[0].event.UnmarshalPayload(&payload))
	assert.Equal(t, task.ID, payload.TaskID)
	assert.Equal(t, 1, payload.RetryCount)
	assert.Equal(t, "503 service unavailable", payload.Error)
	assert.Equal(t, string(CategoryTransient), payload.ErrorCategory)
	assert.Equal(t, "Temporary service outage", payload.Reason)
	assert.InDelta(t, 2.0, payload.DelaySeconds, 0.001)
}

func TestRetryHandlerHandleFailurePermanent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	taskStore := mocks.NewMockTaskStore()
	bus := &capturePublisher{}
	handler := newTestRetryHandler(t, taskStore, bus)

	task := newQueuedTask(t, taskStore)
	require.NoError(t, task.MarkProcessing(time.Now().UTC()))
	require.NoError(t, taskStore.UpdateTask(ctx, task))

	retried, err := handler.HandleFailure(ctx, task, analysis.ErrPermanent)
	require.NoError(t, err)
	assert.False(t, retried)

	stored, err := taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Empty(t, bus.scheduled)
}

func TestRetryHandlerHandleFailureExhaustion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	taskStore := mocks.NewMockTaskStore()
	bus := &capturePublisher{}
	handler := newTestRetryHandler(t, taskStore, bus)

	task := newQueuedTask(t, taskStore)
	require.NoError(t, task.MarkProcessing(time.Now().UTC()))
	task.RetryCount = 3
	require.NoError(t, taskStore.UpdateTask(ctx, task))

	retried, err := handler.HandleFailure(ctx, task, errors.New("request timeout"))
	require.NoError(t, err)
	assert.False(t, retried)

	stored, err := taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Empty(t, bus.scheduled)
}
