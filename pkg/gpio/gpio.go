// Package gpio provides the pin driver abstraction used by the actuators.
//
// Two drivers are available:
//   - Vattu - memory-mapped Raspberry Pi GPIO (production)
//   - Simulated - in-memory pins for development and tests
//
// The driver is selected once at startup (see NewDriver) and wrapped in a
// Manager, which tracks which pins are set up and their last written level.
package gpio

// MaxPin is the highest BCM pin number exposed on the Raspberry Pi header.
const MaxPin = 27

// Mode is the configured direction of a pin.
type Mode int

const (
	// Output configures the pin as a driven output.
	Output Mode = iota
	// Input configures the pin as an input.
	Input
)

// String returns "out" or "in".
func (m Mode) String() string {
	if m == Input {
		return "in"
	}
	return "out"
}

// Pull selects the internal resistor for input pins.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// PWM is a pulse-width modulated output on a single pin.
// Duty cycle values are percentages in the range 0-100.
type PWM interface {
	Start(duty float64) error
	Stop() error
	ChangeDutyCycle(duty float64) error
	ChangeFrequency(hz float64) error
}

// Driver is the hardware backend. Implementations must be safe for
// concurrent use.
type Driver interface {
	// Setup configures a pin.
	Setup(pin int, mode Mode, pull Pull) error

	// Output drives an output pin high or low.
	Output(pin int, high bool) error

	// NewPWM creates a PWM handle on pin at the given frequency (Hz).
	NewPWM(pin int, frequency float64) (PWM, error)

	// Cleanup releases the given pins, or every pin when none are given.
	Cleanup(pins ...int) error

	// Name returns the backend name (e.g., "vattu", "sim").
	Name() string
}
