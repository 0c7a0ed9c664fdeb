// Package processor implements the asynchronous processing core: executing
// analysis tasks, classifying failures, and orchestrating retries.
//
// The pieces compose around the task state machine in the domain package:
//
//   - TaskProcessor executes one attempt of a task and persists the outcome.
//   - Classifier decides whether a failure is permanent, transient or unknown.
//   - RetryPolicy implementations compute backoff delays with jitter.
//   - RetryHandler applies the retry budget and schedules delayed retries.
//   - Service ties everything to the event bus, owns task creation and
//     cancellation, and runs the reconciliation sweep that recovers retries
//     lost to a restart.
//
// All retry scheduling is in-memory. Durability comes from the persisted task
// records plus the sweep, not from the schedule itself.
package processor
