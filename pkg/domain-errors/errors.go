// Package domainerrors defines the coded error type shared by every layer of the
// gateway. Services return these; the HTTP layer translates them into status codes
// and JSON envelopes without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for callers and for HTTP translation.
type Code string

const (
	// CodeNotFound means the product id is outside [0, nextProductId).
	CodeNotFound Code = "not_found"
	// CodeUnauthorized means an ownership or role guard failed, or the caller's
	// identity could not be established.
	CodeUnauthorized Code = "unauthorized"
	// CodeInvalidState means the product's custody status does not satisfy the
	// operation's precondition.
	CodeInvalidState Code = "invalid_state"
	// CodeLedgerUnavailable means the ledger could not be reached at all.
	CodeLedgerUnavailable Code = "ledger_unavailable"
	// CodeRejected means the transaction was submitted but the ledger refused it,
	// typically after losing a race to a concurrent writer.
	CodeRejected Code = "rejected"
	// CodeBadRequest means the request body or parameters were malformed.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput means a domain primitive failed validation at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeConflict means the operation conflicts with current state.
	CodeConflict Code = "conflict"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and caller-safe message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost caller-safe message, or a generic one.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInvalidState, CodeRejected, CodeConflict:
		return http.StatusConflict
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
