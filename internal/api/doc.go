// Package api exposes the HTTP surface of the processing subsystem: queueing
// analyses for a file, inspecting task status and results, and cancelling
// tasks. Handlers are a thin adapter over the processor service, translating
// HTTP concerns into service calls and domain errors into status codes.
package api
