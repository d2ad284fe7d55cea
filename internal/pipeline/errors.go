package pipeline

import "fmt"

// Error is the typed failure a halted run returns. It names the stage that
// failed and carries the underlying cause.
type Error struct {
	Stage   Stage
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// SkipError signals that a conditional stage is deliberately not running.
// It is distinct from a real stage failure: a skip is an expected outcome,
// not a degraded one.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

func skipf(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}
