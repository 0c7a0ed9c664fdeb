package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBusStopped is returned when publishing to a bus that has been stopped.
var ErrBusStopped = errors.New("event bus is stopped")

// EventBus is an in-process publish/subscribe hub. Handlers subscribed to an
// event type are invoked in registration order for each publish. Delayed
// publishes are in-memory timers: they do not survive a process restart, so
// consumers that need at-least-once delivery must pair the bus with a
// reconciliation sweep over persisted state.
//
// The bus is an explicit instance passed to every component; there is no
// package-level global.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewEventBus creates a started EventBus. Call Stop to cancel pending
// delayed publishes and wait for in-flight deliveries.
func NewEventBus(logger *slog.Logger) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &EventBus{
		handlers: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "event_bus"),
	}
}

// Subscribe registers a handler for the given event type. A handler may be
// registered for several event types; within one type, delivery order is
// registration order.
func (b *EventBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("registered event handler",
		"event_type", eventType,
		"handler_count", len(b.handlers[eventType]))
}

// Publish delivers the event synchronously to every handler subscribed to
// its type. If a handler returns an error, the event is still delivered to
// the remaining handlers and the first error is returned.
func (b *EventBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return ErrBusStopped
	}
	registered := b.handlers[event.Type]
	handlers := make([]Handler, len(registered))
	copy(handlers, registered)
	b.mu.RUnlock()

	b.logger.Debug("publishing event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", len(handlers))

	if len(handlers) == 0 {
		b.logger.Warn("no handlers registered for event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			b.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// PublishAfter schedules the event for delivery after the given delay.
// A non-positive delay publishes immediately. The schedule is held only in
// memory; stopping the bus or terminating the process drops it.
func (b *EventBus) PublishAfter(ctx context.Context, event *Event, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, event)
	}

	b.mu.RLock()
	stopped := b.stopped
	b.mu.RUnlock()
	if stopped {
		return ErrBusStopped
	}

	b.logger.Debug("scheduling delayed publish",
		"event_id", event.ID,
		"event_type", event.Type,
		"delay", delay)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			// Deliver on the bus context: the caller's context has
			// usually expired by the time the timer fires.
			if err := b.Publish(b.ctx, event); err != nil && !errors.Is(err, ErrBusStopped) {
				b.logger.Error("delayed publish failed",
					"error", err,
					"event_id", event.ID,
					"event_type", event.Type)
			}
		case <-b.ctx.Done():
			b.logger.Debug("dropping scheduled publish, bus stopped",
				"event_id", event.ID,
				"event_type", event.Type)
		}
	}()

	return nil
}

// Stop cancels pending delayed publishes and waits for in-flight deliveries
// to finish. Further publishes return ErrBusStopped.
func (b *EventBus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	b.logger.Info("event bus stopped")
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)
