// Package resilience guards idempotent store reads with a circuit breaker
// and exponential retry. Writes never go through it.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("store circuit breaker is open")

// Config tunes the breaker and the retry schedule.
type Config struct {
	Name string

	// MaxFailures is the consecutive transient failure count that opens
	// the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32

	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxFailures:      5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
		InitialInterval:  50 * time.Millisecond,
		MaxElapsed:       2 * time.Second,
	}
}

// Reader runs read operations through one shared breaker.
type Reader struct {
	breaker *gobreaker.CircuitBreaker[any]
	config  Config
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewReader creates a Reader.
func NewReader(config Config, logger *slog.Logger, metrics observability.Metrics) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	defaults := DefaultConfig(config.Name)
	if config.MaxFailures == 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = defaults.HalfOpenRequests
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = defaults.InitialInterval
	}
	if config.MaxElapsed <= 0 {
		config.MaxElapsed = defaults.MaxElapsed
	}

	r := &Reader{config: config, logger: logger, metrics: metrics}
	r.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Gauge(observability.MetricBreakerState, float64(to), observability.T("breaker", name))
		},
		// Business outcomes travel as errors but say nothing about the
		// health of the store.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	})
	return r
}

// State reports the breaker state, mainly for health checks.
func (r *Reader) State() gobreaker.State {
	return r.breaker.State()
}

// Do runs fn with retry and breaker protection. Only transient errors
// are retried; domain errors and context cancellation return at once.
func Do[T any](ctx context.Context, r *Reader, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		var zero T
		if attempt > 0 {
			r.metrics.Counter(observability.MetricReadRetries, 1, observability.T("operation", operation))
		}
		attempt++

		out, err := r.breaker.Execute(func() (any, error) {
			return fn(ctx)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			r.metrics.Counter(observability.MetricBreakerRejected, 1, observability.T("operation", operation))
			return zero, backoff.Permanent(ErrCircuitOpen)
		case err != nil && !IsTransient(err):
			return zero, backoff.Permanent(err)
		case err != nil:
			r.logger.Debug("transient read failure", "operation", operation, "attempt", attempt, "error", err)
			return zero, err
		}
		value, _ := out.(T)
		return value, nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.config.InitialInterval
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(exp),
		backoff.WithMaxElapsedTime(r.config.MaxElapsed),
	)
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, sharedDomain.ErrValidation),
		errors.Is(err, sharedDomain.ErrNotFound),
		errors.Is(err, sharedDomain.ErrConflict),
		errors.Is(err, sharedDomain.ErrPolicyViolation),
		errors.Is(err, sharedDomain.ErrInvalidTransition),
		errors.Is(err, ErrCircuitOpen):
		return false
	}
	return true
}
