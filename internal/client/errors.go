package client

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes transport failures.
type ErrorCode string

const (
	// ErrCodeNetwork indicates the request never produced an HTTP response
	// (connection refused, DNS failure, timeout).
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeStatus indicates a non-2xx response.
	ErrCodeStatus ErrorCode = "STATUS"

	// ErrCodeDecode indicates a 2xx response whose body could not be used.
	ErrCodeDecode ErrorCode = "DECODE"
)

// Error is the typed failure returned by every remote call in this package.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the remote operation (e.g. "create order").
	Op string

	// StatusCode is the HTTP status for ErrCodeStatus, 0 otherwise.
	StatusCode int

	// Message is a human-readable description, suitable for an operator.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is or wraps a client Error.
func IsTransportError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// IsNotFound returns true if err is a 404 response.
func IsNotFound(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeStatus && ce.StatusCode == 404
	}
	return false
}
