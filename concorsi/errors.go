package concorsi

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable reports a transient store failure. Callers may retry.
	ErrStoreUnavailable = errors.New("concorsi: store unavailable")
	// ErrQueryTimeout reports a store query that exceeded Config.QueryTimeout.
	ErrQueryTimeout = errors.New("concorsi: query timeout")
	// ErrInvalidFilterCombination reports a request needing two range constraints.
	ErrInvalidFilterCombination = errors.New("concorsi: invalid filter combination")
	// ErrInvalidFilter reports a malformed or out of range filter value.
	ErrInvalidFilter = errors.New("concorsi: invalid filter")
	// ErrInvalidCursor reports a continuation cursor that names no known record.
	ErrInvalidCursor = errors.New("concorsi: invalid cursor")
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("concorsi: not found")
)

// FilterError describes a rejected request field. It unwraps to ErrInvalidFilter
// or ErrInvalidFilterCombination.
type FilterError struct {
	Field   string
	Message string
	Err     error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.cause(), e.Field, e.Message)
}

func (e *FilterError) Unwrap() error {
	return e.cause()
}

func (e *FilterError) cause() error {
	if e.Err == nil {
		return ErrInvalidFilter
	}
	return e.Err
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
