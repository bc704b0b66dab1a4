package session

import "fmt"

// ValidationError covers user-correctable input problems: missing fields,
// unparseable instants, past-dated reminders.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown reminder id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("reminder %s not found", e.ID) }

// UpstreamError reports that the model pipeline could not produce a reply,
// either because every candidate was unavailable or because a candidate
// failed with a non-retryable error. Cause carries the last failure.
type UpstreamError struct {
	Cause error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("model pipeline failed: %v", e.Cause) }

func (e *UpstreamError) Unwrap() error { return e.Cause }
