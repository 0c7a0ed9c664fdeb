package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants published and consumed by the processing subsystem.
const (
	// EventFileUploaded signals that a file finished uploading and analysis
	// tasks should be created for it.
	EventFileUploaded = "file_uploaded"

	// EventTaskQueued signals that a processing task was created and queued.
	EventTaskQueued = "task_queued"

	// EventTaskRetry signals that a failed task was scheduled for another
	// attempt after a backoff delay.
	EventTaskRetry = "task_retry"

	// EventTaskCompleted signals that a task finished successfully.
	EventTaskCompleted = "task_completed"

	// EventTaskFailed signals that a task reached the terminal failed state.
	EventTaskFailed = "task_failed"
)

// Event is the unit of communication on the bus. The payload is serialized
// JSON so subscribers stay decoupled from publisher types.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates which kind of event this is (see constants above)
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Handler defines an interface for components that can handle events.
// Handlers registered for the same event type run in registration order.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls the underlying function.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Publisher defines an interface for components that can publish events.
// This allows services to emit events without direct knowledge of handlers.
type Publisher interface {
	// Publish delivers the event to every handler subscribed to its type.
	Publish(ctx context.Context, event *Event) error

	// PublishAfter delivers the event after the given delay. Delivery is
	// fire-and-forget and non-durable: a scheduled publish is lost if the
	// process terminates before it fires.
	PublishAfter(ctx context.Context, event *Event, delay time.Duration) error
}

// FileUploadedPayload carries the trigger for creating analysis tasks.
type FileUploadedPayload struct {
	FileID    uuid.UUID `json:"file_id"`
	TaskTypes []string  `json:"task_types,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
}

// TaskQueuedPayload is published once per created task.
type TaskQueuedPayload struct {
	TaskID   uuid.UUID `json:"task_id"`
	FileID   uuid.UUID `json:"file_id"`
	TaskType string    `json:"task_type"`
	BatchID  string    `json:"batch_id,omitempty"`
}

// TaskRetryPayload is published when a failed task is scheduled for retry.
// DelaySeconds is the post-jitter delay the schedule actually used.
type TaskRetryPayload struct {
	TaskID        uuid.UUID `json:"task_id"`
	RetryCount    int       `json:"retry_count"`
	Error         string    `json:"error"`
	ErrorCategory string    `json:"error_category"`
	Reason        string    `json:"reason"`
	DelaySeconds  float64   `json:"delay_seconds"`
}

// TaskCompletedPayload is published when a task finishes successfully.
type TaskCompletedPayload struct {
	TaskID     uuid.UUID `json:"task_id"`
	FileID     uuid.UUID `json:"file_id"`
	TaskType   string    `json:"task_type"`
	Confidence float64   `json:"confidence"`
}

// TaskFailedPayload is published when a task reaches the terminal failed
// state, whether by exhaustion, classification, window expiry or cancellation.
type TaskFailedPayload struct {
	TaskID     uuid.UUID `json:"task_id"`
	FileID     uuid.UUID `json:"file_id"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
}
