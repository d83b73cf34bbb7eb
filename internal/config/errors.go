package config

import (
	"errors"
	"fmt"
)

// Error codes for configuration failures.
const (
	ErrCodeRead    = "CONFIG_READ"
	ErrCodeParse   = "CONFIG_PARSE"
	ErrCodeEnv     = "CONFIG_ENV"
	ErrCodeInvalid = "CONFIG_INVALID"
)

// Error is returned by Load when configuration cannot be assembled.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError returns true if err is or wraps a config Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
