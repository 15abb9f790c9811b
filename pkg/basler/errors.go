package basler

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrDeviceNotFound is returned when no device can be bound at open time.
	ErrDeviceNotFound = errors.New("basler: device not found")

	// ErrInvalidParameter is returned when the device rejects a configuration value.
	ErrInvalidParameter = errors.New("basler: invalid parameter")

	// ErrTimeout is returned when no frame arrives within the retrieve timeout.
	ErrTimeout = errors.New("basler: retrieve timeout")

	// ErrBackendUnavailable is returned when a backend is not compiled into this binary.
	ErrBackendUnavailable = errors.New("basler: backend unavailable")

	// ErrClosed is returned when using a device after it was closed.
	ErrClosed = errors.New("basler: device closed")

	// ErrShortFrame is returned when a grab buffer is smaller than its geometry requires.
	ErrShortFrame = errors.New("basler: short frame buffer")
)

// ParameterError reports a configuration value rejected by a device.
type ParameterError struct {
	// Parameter is the feature that was being written.
	Parameter Parameter

	// Value is the rejected value.
	Value any

	// Err is the underlying cause. It wraps ErrInvalidParameter.
	Err error
}

// Error implements the error interface.
func (e *ParameterError) Error() string {
	return fmt.Sprintf("basler: set %s=%v: %v", e.Parameter, e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParameterError) Unwrap() error {
	return e.Err
}

// invalidParameter builds a ParameterError wrapping ErrInvalidParameter with a reason.
func invalidParameter(p Parameter, value any, reason string) error {
	return &ParameterError{
		Parameter: p,
		Value:     value,
		Err:       fmt.Errorf("%w: %s", ErrInvalidParameter, reason),
	}
}
