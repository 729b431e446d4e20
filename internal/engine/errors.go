package engine

import (
	"errors"
	"fmt"

	"github.com/nostrstore/nostrstore/internal/event"
)

// Code categorizes engine errors.
type Code string

const (
	// CodeConfiguration indicates an invalid Config.
	CodeConfiguration Code = "CONFIGURATION_ERROR"

	// CodeOpenFailed indicates the environment could not be created or
	// opened, including a database already larger than the map size.
	CodeOpenFailed Code = "OPEN_FAILED"

	// CodeCorruptRecord indicates a stored record failed validation.
	CodeCorruptRecord Code = "CORRUPT_RECORD"

	// CodeRejected indicates a submitted event was refused. Reason says why.
	CodeRejected Code = "REJECTED_EVENT"

	// CodeSnapshotClosed indicates use of an ended snapshot.
	CodeSnapshotClosed Code = "SNAPSHOT_CLOSED"

	// CodeUnknownSubscription indicates an unknown or cancelled
	// subscription id.
	CodeUnknownSubscription Code = "UNKNOWN_SUBSCRIPTION"

	// CodeInvalidFilter indicates a filter that is not finalized or
	// otherwise unusable.
	CodeInvalidFilter Code = "INVALID_FILTER"

	// CodeBusy indicates Close was refused because snapshots are open.
	CodeBusy Code = "BUSY"

	// CodeNotFound indicates a point lookup found nothing.
	CodeNotFound Code = "NOT_FOUND"

	// CodeClosed indicates use of a closed engine.
	CodeClosed Code = "CLOSED"
)

// Error is the error type returned by every engine operation.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Reason is set for CodeRejected.
	Reason event.Reason

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They match any *Error with the same Code.
var (
	ErrConfiguration       = &Error{Code: CodeConfiguration}
	ErrOpenFailed          = &Error{Code: CodeOpenFailed}
	ErrCorruptRecord       = &Error{Code: CodeCorruptRecord}
	ErrRejected            = &Error{Code: CodeRejected}
	ErrSnapshotClosed      = &Error{Code: CodeSnapshotClosed}
	ErrUnknownSubscription = &Error{Code: CodeUnknownSubscription}
	ErrInvalidFilter       = &Error{Code: CodeInvalidFilter}
	ErrBusy                = &Error{Code: CodeBusy}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrClosed              = &Error{Code: CodeClosed}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Reason != "" {
		msg += " (" + string(e.Reason) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func rejected(err error) *Error {
	return &Error{Code: CodeRejected, Reason: event.ReasonOf(err), Err: err}
}

// CodeOf returns the Code of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ReasonOf returns the rejection reason carried by err, or "".
func ReasonOf(err error) event.Reason {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return event.ReasonOf(err)
}

// IsRejected returns true if err reports a refused event.
func IsRejected(err error) bool {
	return CodeOf(err) == CodeRejected
}

// IsBusy returns true if err reports a refused Close.
func IsBusy(err error) bool {
	return CodeOf(err) == CodeBusy
}

// IsNotFound returns true if err reports a failed point lookup.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
