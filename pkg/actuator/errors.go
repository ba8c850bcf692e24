package actuator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the actuator package.
var (
	// ErrInvalidSpeed indicates a PWM frequency outside 1..1000 Hz.
	ErrInvalidSpeed = errors.New("actuator: speed must be between 1 and 1000 Hz")

	// ErrInvalidDuration indicates a move duration outside (0, 2s].
	ErrInvalidDuration = errors.New("actuator: duration must be greater than 0 and at most 2s")

	// ErrInvalidPosition indicates a target outside 0..100 or an unusable discrete state.
	ErrInvalidPosition = errors.New("actuator: invalid position")

	// ErrInvalidPins indicates duplicate or out-of-range pin numbers.
	ErrInvalidPins = errors.New("actuator: invalid pin assignment")

	// ErrNotInitialized indicates a move before Initialize.
	ErrNotInitialized = errors.New("actuator: not initialized")

	// ErrAlreadyInitialized indicates a second call to Initialize.
	ErrAlreadyInitialized = errors.New("actuator: already initialized")
)

// Error is returned by every failing actuator operation.
type Error struct {
	// Actuator is the actuator name (e.g., "eyes").
	Actuator string

	// Op is the operation that failed (e.g., "open", "initialize").
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Actuator == "" {
		return fmt.Sprintf("actuator: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("actuator %s: %s: %v", e.Actuator, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
