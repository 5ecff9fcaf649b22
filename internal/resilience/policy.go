package resilience

import (
	"time"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// Config controls retries and the per-operation circuit breaker.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	RetryJitter         float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig mirrors types.DefaultRetryConfig with the breaker on.
func DefaultConfig() Config {
	return FromRetry(types.DefaultRetryConfig())
}

// FromRetry builds an executor config from a retry policy, keeping the
// default breaker settings.
func FromRetry(rc types.RetryConfig) Config {
	return Config{
		RetryMaxAttempts:    rc.MaxAttempts,
		RetryInitialBackoff: rc.BaseDelay,
		RetryMaxBackoff:     rc.MaxDelay,
		RetryMultiplier:     rc.Multiplier,
		RetryJitter:         rc.Jitter,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func (c Config) normalize() Config {
	out := c
	def := types.DefaultRetryConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.MaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.BaseDelay
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.MaxDelay
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.Multiplier
	}
	if out.RetryJitter < 0 || out.RetryJitter >= 1 {
		out.RetryJitter = 0
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = 5
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = 0.6
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = 30 * time.Second
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = 1
	}

	return out
}
