package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts bounds how often a single collaborator call is tried.
	DefaultMaxAttempts = 3
	// DefaultInitialBackoff is the first retry delay; subsequent delays grow
	// exponentially.
	DefaultInitialBackoff = time.Second
)

// Caller wraps collaborator calls with bounded retries and exponential
// backoff. Rate-limit and timeout style failures are transient by
// classification; every other failure is retried identically up to the same
// attempt limit. Exhausting the attempts yields a TerminalError carrying the
// final cause.
type Caller struct {
	maxAttempts    int
	initialBackoff time.Duration
	logger         *zap.Logger
}

// NewCaller creates a call wrapper. Non-positive arguments fall back to the
// package defaults.
func NewCaller(maxAttempts int, initialBackoff time.Duration, logger *zap.Logger) *Caller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if initialBackoff <= 0 {
		initialBackoff = DefaultInitialBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		logger:         logger,
	}
}

// Do invokes fn with retry and backoff. The call blocks through retry sleeps;
// ctx cancellation cuts the wait short.
func (c *Caller) Do(ctx context.Context, service string, fn func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxElapsedTime = 0 // attempt count is the only bound

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			c.logger.Warn("transient service failure, will retry",
				zap.String("service", service),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else {
			c.logger.Warn("service call failed",
				zap.String("service", service),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return &TerminalError{Service: service, Attempts: attempt, Err: err}
	}
	return nil
}
