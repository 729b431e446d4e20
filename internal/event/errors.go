package event

import (
	"errors"
	"fmt"
)

// Reason classifies why an event was refused.
type Reason string

const (
	// ReasonParseError: input is not a well-formed event.
	ReasonParseError Reason = "ParseError"

	// ReasonMalformedTag: tags are not an array of non-empty string arrays.
	ReasonMalformedTag Reason = "MalformedTag"

	// ReasonIDMismatch: the declared id is not the hash of the event.
	ReasonIDMismatch Reason = "IDMismatch"

	// ReasonSignatureInvalid: the signature does not verify against the id.
	ReasonSignatureInvalid Reason = "SignatureInvalid"

	// ReasonStoreFailed: the event was valid but could not be persisted.
	ReasonStoreFailed Reason = "StoreFailed"
)

// RejectError reports a refused event.
type RejectError struct {
	Reason  Reason
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RejectError) Unwrap() error {
	return e.Err
}

func reject(reason Reason, format string, args ...any) *RejectError {
	return &RejectError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func rejectWrap(reason Reason, err error, format string, args ...any) *RejectError {
	return &RejectError{Reason: reason, Message: fmt.Sprintf(format, args...), Err: err}
}

// ReasonOf extracts the rejection reason from err.
// Returns "" if err is not (or does not wrap) a *RejectError.
func ReasonOf(err error) Reason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
