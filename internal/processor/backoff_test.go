package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/nimbusvault/nimbus-api/internal/config"
)

// fixedRand returns a jitterFunc that always yields the given value.
// 0.5 means zero jitter; 0.0 the most negative; just under 1.0 the most positive.
func fixedRand(v float64) jitterFunc {
	return func() float64 { return v }
}

func TestExponentialBackoffDelay(t *testing.T) {
	t.Parallel()

	t.Run("doubles per retry without jitter", func(t *testing.T) {
		t.Parallel()

		b := NewExponentialBackoff()
		b.rnd = fixedRand(0.5)

		assert.Equal(t, 1*time.Second, b.Delay(0))
		assert.Equal(t, 2*time.Second, b.Delay(1))
		assert.Equal(t, 4*time.Second, b.Delay(2))
		assert.Equal(t, 8*time.Second, b.Delay(3))
	})

	t.Run("first delay stays within jitter bounds", func(t *testing.T) {
		t.Parallel()

		b := NewExponentialBackoff()
		for i := 0; i < 100; i++ {
			d := b.Delay(0)
			assert.GreaterOrEqual(t, d, 900*time.Millisecond)
			assert.LessOrEqual(t, d, 1100*time.Millisecond)
		}
	})

	t.Run("caps at max before jitter", func(t *testing.T) {
		t.Parallel()

		b := NewExponentialBackoff()
		// 2^10 = 1024s, well beyond the 300s cap; jitter may add at most 10%.
		for i := 0; i < 100; i++ {
			d := b.Delay(10)
			assert.GreaterOrEqual(t, d, 270*time.Second)
			assert.LessOrEqual(t, d, 330*time.Second)
		}
	})
}

func TestLinearBackoffDelay(t *testing.T) {
	t.Parallel()

	t.Run("grows by increment without jitter", func(t *testing.T) {
		t.Parallel()

		b := NewLinearBackoff()
		b.rnd = fixedRand(0.5)

		assert.Equal(t, 5*time.Second, b.Delay(0))
		assert.Equal(t, 10*time.Second, b.Delay(1))
		assert.Equal(t, 15*time.Second, b.Delay(2))
	})

	t.Run("jitter perturbs around the base", func(t *testing.T) {
		t.Parallel()

		low := LinearBackoff{Base: 10 * time.Second, Increment: 0, Jitter: 0.1, rnd: fixedRand(0.0)}
		high := LinearBackoff{Base: 10 * time.Second, Increment: 0, Jitter: 0.1, rnd: fixedRand(0.999999)}

		assert.Equal(t, 9*time.Second, low.Delay(0))
		assert.InDelta(t, 11.0, high.Delay(0).Seconds(), 0.001)
	})
}

func TestApplyJitterClampsAtZero(t *testing.T) {
	t.Parallel()

	// A jitter fraction above 1 can push the delay negative; it must clamp.
	d := applyJitter(1.0, 1.5, fixedRand(0.0))
	assert.Equal(t, time.Duration(0), d)
}

func TestNewRetryPolicy(t *testing.T) {
	t.Parallel()

	t.Run("exponential strategy", func(t *testing.T) {
		t.Parallel()

		policy, err := NewRetryPolicy(config.ProcessingConfig{
			BackoffStrategy: "exponential",
			BackoffBase:     time.Second,
			BackoffMax:      300 * time.Second,
			JitterFraction:  0.1,
		})
		require.NoError(t, err)
		require.IsType(t, &ExponentialBackoff{}, policy)
	})

	t.Run("linear strategy", func(t *testing.T) {
		t.Parallel()

		policy, err := NewRetryPolicy(config.ProcessingConfig{
			BackoffStrategy:  "linear",
			BackoffBase:      5 * time.Second,
			BackoffIncrement: 5 * time.Second,
			JitterFraction:   0.1,
		})
		require.NoError(t, err)
		require.IsType(t, &LinearBackoff{}, policy)
	})

	t.Run("unknown strategy is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewRetryPolicy(config.ProcessingConfig{BackoffStrategy: "fibonacci"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown backoff strategy")
	})
}
