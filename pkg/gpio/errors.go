package gpio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSetUp is returned when a pin is used before Setup.
	ErrNotSetUp = errors.New("gpio: pin not set up")

	// ErrPinRange is returned for pin numbers outside 0..MaxPin.
	ErrPinRange = errors.New("gpio: pin out of range")

	// ErrDutyRange is returned for duty cycles outside 0..100.
	ErrDutyRange = errors.New("gpio: duty cycle out of range")

	// ErrFrequency is returned for non-positive PWM frequencies.
	ErrFrequency = errors.New("gpio: frequency must be positive")

	// ErrUnsupported is returned when a backend cannot perform an operation.
	ErrUnsupported = errors.New("gpio: operation not supported by backend")

	// ErrClosed is returned after the driver has been closed.
	ErrClosed = errors.New("gpio: driver closed")
)

// Error wraps a pin-level failure with the pin and operation.
type Error struct {
	Pin int
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("gpio: %s pin %d: %v", e.Op, e.Pin, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func pinError(pin int, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Pin: pin, Op: op, Err: err}
}

func checkPin(pin int) error {
	if pin < 0 || pin > MaxPin {
		return fmt.Errorf("%w: %d (valid 0-%d)", ErrPinRange, pin, MaxPin)
	}
	return nil
}

func checkDuty(duty float64) error {
	if duty < 0 || duty > 100 {
		return fmt.Errorf("%w: %.1f", ErrDutyRange, duty)
	}
	return nil
}
