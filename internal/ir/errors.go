package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes runtime errors.
type ErrorCode string

const (
	// ErrCodeCapacityOverflow: buffer growth exceeds the addressable range.
	ErrCodeCapacityOverflow ErrorCode = "CAPACITY_OVERFLOW"

	// ErrCodeDuplicateName: a name is bound twice.
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"

	// ErrCodeUnknownName: a name is not bound.
	ErrCodeUnknownName ErrorCode = "UNKNOWN_NAME"

	// ErrCodeAliasedBuffer: one buffer bound under two names.
	ErrCodeAliasedBuffer ErrorCode = "ALIASED_BUFFER"

	// ErrCodeSchemaMismatch: an address map or value does not match a schema.
	ErrCodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"

	// ErrCodeStaleAddressMap: an address map outlived a buffer mutation.
	ErrCodeStaleAddressMap ErrorCode = "STALE_ADDRESS_MAP"

	// ErrCodeCompilationFailure: statements could not be compiled.
	ErrCodeCompilationFailure ErrorCode = "COMPILATION_FAILURE"
)

// Error is the structured error returned by the runtime packages.
// All of these are local, synchronous failures; none are retried.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Name is the variable or step the error is about, if any.
	Name string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Name != "" {
		msg = fmt.Sprintf("%s (name=%s)", msg, e.Name)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an *Error with a formatted message.
func Errorf(code ErrorCode, name, format string, args ...any) *Error {
	return &Error{Code: code, Name: name, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an *Error around a cause.
func WrapError(code ErrorCode, name, message string, err error) *Error {
	return &Error{Code: code, Name: name, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
