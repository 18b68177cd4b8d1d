package api

import "errors"

var (
	// ErrUnneededExecution is the single cooperative-cancellation
	// signal: a render attempt detected that it lost a race against a
	// newer structural change. Callers stop immediately, persist
	// nothing further, and let whichever process issued the superseding
	// change redo the render.
	ErrUnneededExecution = errors.New("render attempt superseded by a newer change")

	// ErrCorruptCache means a cached payload could not be decoded or
	// was missing from blob storage. Callers treat the entry as absent
	// and re-render; it is never a hard failure.
	ErrCorruptCache = errors.New("cached render result is corrupt")

	// ErrTabNotFound is returned when a delta request names a tab slug
	// that does not exist (or is deleted) in the workflow.
	ErrTabNotFound = errors.New("tab not found")

	// ErrStepNotFound is returned when a delta request names a step
	// slug that does not exist (or is deleted) in its tab.
	ErrStepNotFound = errors.New("step not found")
)

// ValidationError is a rejected delta request: bad arguments, checked
// synchronously at creation time. Nothing is logged and render state is
// untouched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError with the given message.
func NewValidationError(msg string) error { return &ValidationError{Msg: msg} }

// IsValidationError reports whether err is a delta validation failure.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
