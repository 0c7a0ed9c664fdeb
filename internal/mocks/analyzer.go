package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/analysis"
)

// AnalyzeOutcome is one scripted response from the MockAnalyzer.
type AnalyzeOutcome struct {
	Result *analysis.Result
	Err    error
}

// MockAnalyzer implements analysis.Analyzer for testing. Outcomes are
// consumed in order, one per Analyze call; once the script is exhausted the
// last outcome repeats. An unscripted analyzer succeeds with a fixed payload.
type MockAnalyzer struct {
	// AnalyzeFn overrides the scripted behavior entirely when set.
	AnalyzeFn func(ctx context.Context, taskType string, fileID uuid.UUID) (*analysis.Result, error)

	mu       sync.Mutex
	outcomes []AnalyzeOutcome
	calls    int
}

// NewMockAnalyzer creates a MockAnalyzer with the given script.
func NewMockAnalyzer(outcomes ...AnalyzeOutcome) *MockAnalyzer {
	return &MockAnalyzer{outcomes: outcomes}
}

// SucceedWith returns an outcome carrying a successful analysis result.
func SucceedWith(data string, confidence float64) AnalyzeOutcome {
	return AnalyzeOutcome{
		Result: &analysis.Result{
			Data:       json.RawMessage(data),
			Confidence: confidence,
		},
	}
}

// FailWith returns an outcome carrying an analysis error.
func FailWith(err error) AnalyzeOutcome {
	return AnalyzeOutcome{Err: err}
}

// Analyze implements the analysis.Analyzer interface.
func (m *MockAnalyzer) Analyze(ctx context.Context, taskType string, fileID uuid.UUID) (*analysis.Result, error) {
	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, taskType, fileID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.outcomes) == 0 {
		return &analysis.Result{
			Data:       json.RawMessage(`{"summary":"ok"}`),
			Confidence: 0.9,
		}, nil
	}

	idx := m.calls - 1
	if idx >= len(m.outcomes) {
		idx = len(m.outcomes) - 1
	}
	outcome := m.outcomes[idx]
	return outcome.Result, outcome.Err
}

// Calls returns how many times Analyze was invoked.
func (m *MockAnalyzer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
