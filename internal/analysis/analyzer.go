// Package analysis defines the contract between the task-processing core
// and the external content-analysis capability. The core treats the
// analyzer as opaque: it hands over a task type and a file reference and
// receives either a structured result or an error.
package analysis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Result is the outcome of one analyzer invocation.
type Result struct {
	// Data is the opaque structured payload produced by the analyzer.
	Data json.RawMessage `json:"data"`

	// Confidence is the analyzer's confidence in the result, in [0, 1].
	// Zero when the analyzer does not report one.
	Confidence float64 `json:"confidence"`
}

// Analyzer performs the actual content analysis for a task.
//
// Implementations should return errors wrapping ErrPermanent or ErrTransient
// so failures can be classified structurally; untagged errors fall back to
// textual classification.
type Analyzer interface {
	// Analyze runs the analysis identified by taskType against the
	// referenced file.
	Analyze(ctx context.Context, taskType string, fileID uuid.UUID) (*Result, error)
}
