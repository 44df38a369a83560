package automation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure.
type ErrorKind string

const (
	// Session lifecycle faults
	KindSessionOpen     ErrorKind = "SessionOpenError"
	KindSessionClosed   ErrorKind = "SessionClosed"
	KindSessionNotFound ErrorKind = "SessionNotFound"

	// Selector resolution faults
	KindElementNotFound ErrorKind = "ElementNotFound"
	KindElementTimeout  ErrorKind = "ElementTimeout"

	// Page-side script exceptions
	KindScript ErrorKind = "ScriptError"

	// Driver-call faults
	KindNavigation ErrorKind = "NavigationError"
	KindCapture    ErrorKind = "CaptureError"
	KindDriver     ErrorKind = "DriverError"

	// Request validation faults, raised before any session is opened
	KindInvalidRequest ErrorKind = "InvalidRequest"

	// Summary-level markers, never attached to an action
	KindBatchTimeout ErrorKind = "BatchTimeout"
	KindCancelled    ErrorKind = "Cancelled"
)

// Error is a classified failure. It is carried in ActionResult.Error and is
// returned by Orchestrator.Run for invalid requests.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// Err is the underlying cause, if any
	Err error `json:"-"`
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
