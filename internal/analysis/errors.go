package analysis

import "errors"

// Common errors returned by analyzer implementations.
var (
	// ErrPermanent tags failures that will not succeed on retry, such as
	// unreadable input or an unsupported task type.
	ErrPermanent = errors.New("permanent analysis failure")

	// ErrTransient tags failures that might resolve on retry, such as
	// timeouts or upstream outages.
	ErrTransient = errors.New("transient analysis failure")

	// ErrUnknownTaskType is returned when the analyzer does not implement
	// the requested task type. Not retriable.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrEmptyResult is returned when the analyzer produced no usable payload.
	ErrEmptyResult = errors.New("analyzer returned an empty result")
)
