// Package domain holds the processing subsystem's core entities: tasks, the
// status state machine that governs them, and the results they produce.
// It is independent of storage, transport, and the analyzer.
package domain
