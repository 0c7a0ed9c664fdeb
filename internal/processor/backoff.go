package processor

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/nimbusvault/nimbus-api/internal/config"
)

// RetryPolicy calculates the delay to wait before the next retry attempt.
// Implementations never return a negative duration.
type RetryPolicy interface {
	// Delay returns the backoff for the given retry count.
	Delay(retryCount int) time.Duration
}

// jitterFunc returns a uniform random value in [0, 1). Production policies
// use math/rand; tests inject a deterministic source.
type jitterFunc func() float64

// ExponentialBackoff doubles the delay with each retry, capped at Max and
// perturbed by uniform jitter in ±(delay * Jitter).
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	rnd jitterFunc
}

// NewExponentialBackoff creates an ExponentialBackoff with the default
// parameters: base 1s, max 300s, jitter fraction 0.1.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   time.Second,
		Max:    300 * time.Second,
		Jitter: 0.1,
		rnd:    rand.Float64,
	}
}

// Delay returns min(Base * 2^retryCount, Max) with jitter applied.
func (b *ExponentialBackoff) Delay(retryCount int) time.Duration {
	base := b.Base.Seconds() * math.Pow(2, float64(retryCount))
	capped := math.Min(base, b.Max.Seconds())
	return applyJitter(capped, b.Jitter, b.rnd)
}

// LinearBackoff grows the delay by a fixed increment per retry, perturbed by
// uniform jitter in ±(delay * Jitter).
type LinearBackoff struct {
	Base      time.Duration
	Increment time.Duration
	Jitter    float64

	rnd jitterFunc
}

// NewLinearBackoff creates a LinearBackoff with the default parameters:
// base 5s, increment 5s, jitter fraction 0.1.
func NewLinearBackoff() *LinearBackoff {
	return &LinearBackoff{
		Base:      5 * time.Second,
		Increment: 5 * time.Second,
		Jitter:    0.1,
		rnd:       rand.Float64,
	}
}

// Delay returns Base + Increment*retryCount with jitter applied.
func (b *LinearBackoff) Delay(retryCount int) time.Duration {
	base := b.Base.Seconds() + b.Increment.Seconds()*float64(retryCount)
	return applyJitter(base, b.Jitter, b.rnd)
}

// applyJitter perturbs a delay (in seconds) by a uniform amount in
// ±(delay * fraction), clamping the result at zero.
func applyJitter(seconds, fraction float64, rnd jitterFunc) time.Duration {
	if rnd == nil {
		rnd = rand.Float64
	}

	jitterAmount := seconds * fraction
	perturbed := seconds + (rnd()*2-1)*jitterAmount
	if perturbed < 0 {
		perturbed = 0
	}

	return time.Duration(perturbed * float64(time.Second))
}

// NewRetryPolicy builds the RetryPolicy selected by configuration.
func NewRetryPolicy(cfg config.ProcessingConfig) (RetryPolicy, error) {
	switch cfg.BackoffStrategy {
	case "exponential":
		return &ExponentialBackoff{
			Base:   cfg.BackoffBase,
			Max:    cfg.BackoffMax,
			Jitter: cfg.JitterFraction,
			rnd:    rand.Float64,
		}, nil
	case "linear":
		return &LinearBackoff{
			Base:      cfg.BackoffBase,
			Increment: cfg.BackoffIncrement,
			Jitter:    cfg.JitterFraction,
			rnd:       rand.Float64,
		}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", cfg.BackoffStrategy)
	}
}
