package domain

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid benchmark configuration. It is always raised
// before any cluster resource is allocated.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var (
	// ErrNoWindows is wrapped in a ConfigError when the window does not fit the data.
	ErrNoWindows = errors.New("window size exceeds dataset length, no windows to evaluate")

	// ErrEmptyResult is returned when no job of a batch succeeded.
	ErrEmptyResult = errors.New("no job of the batch succeeded")

	// ErrJobTimeout is the failure cause of a job that missed its deadline.
	ErrJobTimeout = errors.New("job deadline exceeded")
)

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
