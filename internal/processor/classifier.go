package processor

import (
	"errors"
	"strings"

	"github.com/nimbusvault/nimbus-api/internal/analysis"
)

// ErrorCategory groups failures by how recovery should treat them.
type ErrorCategory string

// Possible error categories
const (
	// CategoryPermanent marks failures that no amount of retrying will fix.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryTransient marks failures that are expected to resolve on retry.
	CategoryTransient ErrorCategory = "transient"

	// CategoryUnknown marks failures the classifier could not place. They
	// are treated as retriable, bounded only by the retry-count and
	// retry-window limits.
	CategoryUnknown ErrorCategory = "unknown"
)

// Classification is the classifier's verdict on a single failure.
type Classification struct {
	Retriable bool
	Reason    string
	Category  ErrorCategory
}

// vocabEntry pairs a lowercase substring pattern with a human-readable reason.
type vocabEntry struct {
	pattern string
	reason  string
}

// Classifier maps failure descriptions to a retry classification.
//
// Structured errors tagged by the analyzer (analysis.ErrPermanent,
// analysis.ErrTransient) are classified structurally; free-text errors fall
// back to case-insensitive substring matching against the permanent
// vocabulary first, then the transient vocabulary. Within a vocabulary the
// first matching pattern wins. Unmatched errors default to retriable: an
// unknown failure is assumed recoverable, bounded by the retry limits, never
// by classification alone.
type Classifier struct {
	permanent []vocabEntry
	transient []vocabEntry
}

// NewClassifier creates a Classifier with the default vocabularies.
func NewClassifier() *Classifier {
	return &Classifier{
		permanent: []vocabEntry{
			{"permission denied", "Access permission issues"},
			{"not found", "Resource not found"},
			{"invalid format", "Invalid input format"},
			{"quota exceeded", "Resource quota exceeded"},
			{"invalid credentials", "Authentication failed"},
		},
		transient: []vocabEntry{
			{"timeout", "Request timeout"},
			{"rate limit", "Rate limit exceeded"},
			{"connection reset", "Connection issues"},
			{"service unavailable", "Temporary service outage"},
			{"internal server error", "Server error"},
		},
	}
}

// Classify maps a free-text failure description to a classification using
// substring matching.
func (c *Classifier) Classify(errorText string) Classification {
	lower := strings.ToLower(errorText)

	for _, entry := range c.permanent {
		if strings.Contains(lower, entry.pattern) {
			return Classification{
				Retriable: false,
				Reason:    entry.reason,
				Category:  CategoryPermanent,
			}
		}
	}

	for _, entry := range c.transient {
		if strings.Contains(lower, entry.pattern) {
			return Classification{
				Retriable: true,
				Reason:    entry.reason,
				Category:  CategoryTransient,
			}
		}
	}

	return Classification{
		Retriable: true,
		Reason:    "Unknown error",
		Category:  CategoryUnknown,
	}
}

// ClassifyError classifies a Go error. Errors tagged by the analyzer are
// classified structurally; everything else goes through the textual
// classifier as a fallback for analyzers that cannot be changed.
func (c *Classifier) ClassifyError(err error) Classification {
	if err == nil {
		return Classification{
			Retriable: true,
			Reason:    "No error information",
			Category:  CategoryUnknown,
		}
	}

	if errors.Is(err, analysis.ErrPermanent) {
		return Classification{
			Retriable: false,
			Reason:    "Analyzer reported a permanent failure",
			Category:  CategoryPermanent,
		}
	}

	if errors.Is(err, analysis.ErrTransient) {
		return Classification{
			Retriable: true,
			Reason:    "Analyzer reported a transient failure",
			Category:  CategoryTransient,
		}
	}

	return c.Classify(err.Error())
}
