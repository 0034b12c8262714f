package store

import (
	"errors"

	"github.com/avelasquez/identity-cassandra/domain"
)

// Code enumerates the outcome classes a store operation can fail with.
// Persistence operations never let a transport error escape untranslated:
// every failure crossing the store boundary carries one of these codes.
type Code string

const (
	// CodeInvalidArgument indicates a nil or missing required entity or
	// parameter.
	CodeInvalidArgument Code = "invalid_argument"

	// CodeInvalidOperation indicates a state-dependent precondition was
	// violated, such as confirming a phone number that does not exist or
	// adding a duplicate login.
	CodeInvalidOperation Code = "invalid_operation"

	// CodeNoHostAvailable indicates no database host could be reached.
	CodeNoHostAvailable Code = "no_host_available"

	// CodeUnavailable indicates the cluster could not meet the requested
	// consistency level.
	CodeUnavailable Code = "unavailable"

	// CodeReadTimeout indicates a read timed out at the coordinator.
	CodeReadTimeout Code = "read_timeout"

	// CodeWriteTimeout indicates a write timed out at the coordinator.
	CodeWriteTimeout Code = "write_timeout"

	// CodeQueryValidation indicates the statement was rejected as
	// syntactically or semantically invalid.
	CodeQueryValidation Code = "query_validation"

	// CodeOther covers transport failures with no more specific class;
	// the error message carries the detail.
	CodeOther Code = "other"
)

// Error is the uniform failure outcome returned by store operations.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a store error wrapping cause, which may be nil.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// InvalidArgument builds an invalid-argument error.
func InvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

// InvalidOperation builds an invalid-operation error.
func InvalidOperation(message string, cause error) *Error {
	return &Error{Code: CodeInvalidOperation, Message: message, cause: cause}
}

// CodeOf extracts the outcome code from err. Errors that did not originate
// from a store operation classify as CodeOther; a nil error has no code and
// returns "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, domain.ErrDuplicateLogin) || errors.Is(err, domain.ErrNoPhoneNumber) {
		return CodeInvalidOperation
	}
	return CodeOther
}
