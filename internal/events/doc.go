// Package events provides the in-process publish/subscribe hub that
// decouples producers of state-change notifications (upload completion,
// retry scheduling) from their consumers (task creation, task execution,
// reporting).
//
// The primary components are:
// - Event: a typed, JSON-payload notification
// - Handler: interface for components that consume events
// - EventBus: an explicit pub/sub instance with ordered delivery per event
//   type, optional delayed publishing, and a stop lifecycle
//
// Delivery is fire-and-forget and non-durable by design; durability, where
// needed, comes from persisted task state plus reconciliation.
package events
