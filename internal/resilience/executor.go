// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resilience runs calls to flaky backends with bounded exponential
// backoff and a circuit breaker per named operation.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what to do with a failed attempt.
// Retryable failures are retried; RecordFailure failures count against the
// breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool

	// MinWait is a backend-requested delay, such as Retry-After. It raises
	// the next backoff but never lowers it.
	MinWait time.Duration
}

// ErrorClassifier maps an attempt error to its classification.
type ErrorClassifier func(err error) ErrorClassification

// RetryFunc observes each scheduled retry.
type RetryFunc func(operation string, attempt int, wait time.Duration, err error)

// jitterRand returns a value in [0,1). Tests replace it for determinism.
var jitterRand = rand.Float64

// Executor is safe for concurrent use.
type Executor struct {
	cfg     Config
	logger  *slog.Logger
	onRetry RetryFunc

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewExecutor returns an executor with cfg normalized against the defaults.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:      cfg.normalize(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// OnRetry registers a hook called before every backoff wait.
func (e *Executor) OnRetry(fn RetryFunc) {
	e.onRetry = fn
}

// Execute calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. Every attempt passes through the operation's
// breaker, so an open circuit fails fast and is retried like any transient
// error. It returns the number of attempts made and the last error.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) (int, error) {
	if fn == nil {
		return 0, fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	call := fn
	if e.cfg.BreakerEnabled {
		breaker := e.circuitBreaker(op, classifier)
		call = func(ctx context.Context) error {
			_, err := breaker.Execute(func() (any, error) {
				return nil, fn(ctx)
			})
			return err
		}
	}

	backoff := e.cfg.RetryInitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := call(ctx)
		if err == nil {
			return attempt, nil
		}

		class := classifier(err)
		if !class.Retryable || attempt >= e.cfg.RetryMaxAttempts {
			return attempt, err
		}

		wait := max(e.jitter(min(backoff, e.cfg.RetryMaxBackoff)), class.MinWait)
		e.logger.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if e.onRetry != nil {
			e.onRetry(op, attempt, wait, err)
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, err
			case <-timer.C:
			}
		}

		backoff = time.Duration(float64(backoff) * e.cfg.RetryMultiplier)
		if backoff > e.cfg.RetryMaxBackoff {
			backoff = e.cfg.RetryMaxBackoff
		}
	}
}

// jitter spreads d uniformly over [d*(1-j), d*(1+j)].
func (e *Executor) jitter(d time.Duration) time.Duration {
	j := e.cfg.RetryJitter
	if j == 0 || d <= 0 {
		return d
	}
	factor := 1 - j + 2*j*jitterRand()
	return time.Duration(float64(d) * factor)
}

func (e *Executor) circuitBreaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
