package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/nimbusvault/nimbus-api/internal/analysis"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"github.com/nimbusvault/nimbus-api/internal/events"
	"github.com/nimbusvault/nimbus-api/internal/mocks"
	"github.com/nimbusvault/nimbus-api/internal/store"
)

type processorFixture struct {
	taskStore   *mocks.MockTaskStore
	resultStore *mocks.MockResultStore
	analyzer    *mocks.MockAnalyzer
	bus         *capturePublisher
	processor   *TaskProcessor
}

func newProcessorFixture(t *testing.T, analyzer *mocks.MockAnalyzer) *processorFixture {
	t.Helper()

	taskStore := mocks.NewMockTaskStore()
	resultStore := mocks.NewMockResultStore()
	bus := &capturePublisher{}

	retry := newTestRetryHandler(t, taskStore, bus)
	proc, err := NewTaskProcessor(taskStore, resultStore, analyzer, retry, bus, testLogger())
	require.NoError(t, err)

	return &processorFixture{
		taskStore:   taskStore,
		resultStore: resultStore,
		analyzer:    analyzer,
		bus:         bus,
		processor:   proc,
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer(
		mocks.SucceedWith(`{"summary":"a cat picture"}`, 0.92),
	))
	task := newQueuedTask(t, f.taskStore)

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))

	stored, err := f.taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 0.92, stored.ConfidenceScore)
	assert.Equal(t, 0, stored.RetryCount)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)

	result, err := f.resultStore.GetResultByTaskID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, result.TaskID)
	assert.Equal(t, task.TaskType, result.ResultType)
	assert.JSONEq(t, `{"summary":"a cat picture"}`, string(result.ResultData))

	completed := f.bus.publishedOfType(events.EventTaskCompleted)
	require.Len(t, completed, 1)
	var payload events.TaskCompletedPayload
	require.NoError(t, completed[0].UnmarshalPayload(&payload))
	assert.Equal(t, task.ID, payload.TaskID)
	assert.Equal(t, 0.92, payload.Confidence)
}

func TestProcessTaskMissingTask(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t, mocks.NewMockAnalyzer())

	err := f.processor.ProcessTask(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestProcessTaskExhaustsRetriesThenFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer(
		mocks.FailWith(errors.New("request timeout")),
	))
	task := newQueuedTask(t, f.taskStore)

	// Three failed attempts leave the task retrying with an exhausted budget.
	for attempt := 1; attempt <= 3; attempt++ {
		require.NoError(t, f.processor.ProcessTask(ctx, task.ID))

		stored, err := f.taskStore.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusRetrying, stored.Status)
		assert.Equal(t, attempt, stored.RetryCount)
	}
	require.Len(t, f.bus.scheduled, 3)

	// The fourth attempt finds no budget left and fails terminally.
	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))

	stored, err := f.taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Equal(t, "request timeout", stored.ErrorMessage)

	failed := f.bus.publishedOfType(events.EventTaskFailed)
	require.Len(t, failed, 1)
	var payload events.TaskFailedPayload
	require.NoError(t, failed[0].UnmarshalPayload(&payload))
	assert.Equal(t, task.ID, payload.TaskID)
	assert.Equal(t, 3, payload.RetryCount)
	assert.Equal(t, "request timeout", payload.Error)
}

func TestProcessTaskRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer(
		mocks.FailWith(errors.New("connection reset by peer")),
		mocks.FailWith(errors.New("503 service unavailable")),
		mocks.SucceedWith(`{"title":"quarterly report"}`, 0.81),
	))
	task := newQueuedTask(t, f.taskStore)

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))
	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))
	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))

	stored, err := f.taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	// The count records how many retries it took and is not reset on success.
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, 1, f.resultStore.ResultCount())
}

func TestProcessTaskPermanentFailureFirstAttempt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer(
		mocks.FailWith(errors.New("storage: permission denied")),
	))
	task := newQueuedTask(t, f.taskStore)

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))

	stored, err := f.taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Empty(t, f.bus.scheduled)
	assert.Len(t, f.bus.publishedOfType(events.EventTaskFailed), 1)
}

func TestProcessTaskEmptyResultIsFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer(
		mocks.AnalyzeOutcome{Result: &analysis.Result{}},
	))
	task := newQueuedTask(t, f.taskStore)

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))

	stored, err := f.taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRetrying, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "empty result")
}

func TestProcessTaskIsIdempotentOnTerminalTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer(
		mocks.SucceedWith(`{"ok":true}`, 0.7),
	))
	task := newQueuedTask(t, f.taskStore)

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))
	require.Equal(t, 1, f.analyzer.Calls())

	// A stale retry delivery after completion must not run the analyzer again.
	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))
	assert.Equal(t, 1, f.analyzer.Calls())
	assert.Equal(t, 1, f.resultStore.ResultCount())

	stored, err := f.taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
}

func TestProcessTaskSkipsCancelledTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer())
	task := newQueuedTask(t, f.taskStore)

	require.NoError(t, task.MarkFailed(time.Now().UTC(), "task cancelled"))
	require.NoError(t, f.taskStore.UpdateTask(ctx, task))

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))
	assert.Equal(t, 0, f.analyzer.Calls())

	stored, err := f.taskStore.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, "task cancelled", stored.ErrorMessage)
}

func TestProcessTaskSkipsInFlightTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer())
	task := newQueuedTask(t, f.taskStore)

	require.NoError(t, task.MarkProcessing(time.Now().UTC()))
	require.NoError(t, f.taskStore.UpdateTask(ctx, task))

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))
	assert.Equal(t, 0, f.analyzer.Calls())
}

func TestProcessTaskDuplicateResultIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t, mocks.NewMockAnalyzer(
		mocks.SucceedWith(`{"ok":true}`, 0.7),
	))
	task := newQueuedTask(t, f.taskStore)

	existing, err := domain.NewProcessingResult(task.ID, task.TaskType, []byte(`{"ok":true}`), 0.7)
	require.NoError(t, err)
	require.NoError(t, f.resultStore.SaveResult(ctx, existing))

	require.NoError(t, f.processor.ProcessTask(ctx, task.ID))
	assert.Equal(t, 1, f.resultStore.ResultCount())
	assert.Empty(t, f.bus.publishedOfType(events.EventTaskCompleted))
}
