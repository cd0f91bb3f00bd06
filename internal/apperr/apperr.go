package apperr

import (
	"errors"
	"fmt"
)

// Stable error codes. Consumers branch on these, never on message text.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeMultipleResults = "MULTIPLE_RESULTS"
	CodeValidation      = "VALIDATION_FAILED"
	CodeConflict        = "CONFLICT"
	CodeTransaction     = "TRANSACTION_FAILED"
	CodeBackend         = "BACKEND_ERROR"
)

type Error struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	cause   error
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(code string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

func MultipleResults(format string, args ...any) *Error {
	return New(CodeMultipleResults, format, args...)
}

func Validation(msg string, details ...ErrorDetail) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

func Transaction(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeTransaction, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Backend wraps an unclassified engine failure.
func Backend(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeBackend, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Wrap attaches a cause to an existing Error.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// CodeOf returns the error's code, or CodeBackend for errors
// that did not originate in this package.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeBackend
}

func is(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

func IsNotFound(err error) bool        { return is(err, CodeNotFound) }
func IsMultipleResults(err error) bool { return is(err, CodeMultipleResults) }
func IsValidation(err error) bool      { return is(err, CodeValidation) }
func IsConflict(err error) bool        { return is(err, CodeConflict) }
func IsTransaction(err error) bool     { return is(err, CodeTransaction) }
