package services

import (
	"context"
	"errors"
	"fmt"
)

// UnavailableError indicates a collaborator is not configured or not
// reachable; the availability probe failed before any real call was made.
type UnavailableError struct {
	Service string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service %s not available", e.Service)
}

// TransientError marks a failure worth retrying, such as a rate-limit
// response from an upstream API.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient service failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err so the call wrapper classifies it as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether an error is a rate-limit/timeout style failure.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// TerminalError is returned once all retry attempts are exhausted. It carries
// the final underlying cause.
type TerminalError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("service %s failed after %d attempts: %v", e.Service, e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}
