package gpio

import (
	"log/slog"
	"sort"
	"sync"
)

// Manager is the single point of control for pin operations.
// It validates pin numbers, refuses writes to pins that were never set up,
// and remembers the last level written to each output so the state can be
// reported to clients.
type Manager struct {
	driver Driver
	logger *slog.Logger

	mu     sync.Mutex
	modes  map[int]Mode
	levels map[int]bool
	pwms   map[int]PWM
}

// NewManager wraps driver. A nil logger uses slog.Default().
func NewManager(driver Driver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		driver: driver,
		logger: logger.With("component", "gpio", "backend", driver.Name()),
		modes:  make(map[int]Mode),
		levels: make(map[int]bool),
		pwms:   make(map[int]PWM),
	}
}

// Backend returns the driver name.
func (m *Manager) Backend() string {
	return m.driver.Name()
}

// Setup configures pin with the given mode and pull resistor.
func (m *Manager) Setup(pin int, mode Mode, pull Pull) error {
	if err := checkPin(pin); err != nil {
		return pinError(pin, "setup", err)
	}
	if err := m.driver.Setup(pin, mode, pull); err != nil {
		return pinError(pin, "setup", err)
	}

	m.mu.Lock()
	m.modes[pin] = mode
	if mode == Output {
		m.levels[pin] = false
	}
	m.mu.Unlock()

	m.logger.Debug("pin set up", "pin", pin, "mode", mode)
	return nil
}

// Output writes a level to a pin previously set up as an output.
func (m *Manager) Output(pin int, high bool) error {
	m.mu.Lock()
	mode, ok := m.modes[pin]
	m.mu.Unlock()
	if !ok || mode != Output {
		return pinError(pin, "output", ErrNotSetUp)
	}

	if err := m.driver.Output(pin, high); err != nil {
		return pinError(pin, "output", err)
	}

	m.mu.Lock()
	m.levels[pin] = high
	m.mu.Unlock()
	return nil
}

// CreatePWM creates a PWM handle on a pin that has been set up.
func (m *Manager) CreatePWM(pin int, frequency float64) (PWM, error) {
	m.mu.Lock()
	_, ok := m.modes[pin]
	m.mu.Unlock()
	if !ok {
		return nil, pinError(pin, "pwm", ErrNotSetUp)
	}
	if frequency <= 0 {
		return nil, pinError(pin, "pwm", ErrFrequency)
	}

	pwm, err := m.driver.NewPWM(pin, frequency)
	if err != nil {
		return nil, pinError(pin, "pwm", err)
	}

	m.mu.Lock()
	m.pwms[pin] = pwm
	m.mu.Unlock()

	m.logger.Debug("pwm created", "pin", pin, "frequency_hz", frequency)
	return pwm, nil
}

// CleanupPin stops any PWM on pin and releases it. Errors are logged.
func (m *Manager) CleanupPin(pin int) {
	m.mu.Lock()
	pwm := m.pwms[pin]
	delete(m.pwms, pin)
	delete(m.modes, pin)
	delete(m.levels, pin)
	m.mu.Unlock()

	if pwm != nil {
		if err := pwm.Stop(); err != nil {
			m.logger.Error("stop pwm failed", "pin", pin, "error", err)
		}
	}
	if err := m.driver.Cleanup(pin); err != nil {
		m.logger.Error("cleanup pin failed", "pin", pin, "error", err)
	}
}

// CleanupAll stops every PWM and releases every pin. Errors are logged.
func (m *Manager) CleanupAll() {
	m.mu.Lock()
	pwms := m.pwms
	pins := make([]int, 0, len(m.modes))
	for pin := range m.modes {
		pins = append(pins, pin)
	}
	m.pwms = make(map[int]PWM)
	m.modes = make(map[int]Mode)
	m.levels = make(map[int]bool)
	m.mu.Unlock()

	for pin, pwm := range pwms {
		if err := pwm.Stop(); err != nil {
			m.logger.Error("stop pwm failed", "pin", pin, "error", err)
		}
	}

	if len(pins) == 0 {
		return
	}
	sort.Ints(pins)
	if err := m.driver.Cleanup(pins...); err != nil {
		m.logger.Error("cleanup failed", "pins", pins, "error", err)
		return
	}
	m.logger.Info("cleaned up pins", "count", len(pins))
}

// PinStates returns the last written level of every output pin.
func (m *Manager) PinStates() map[int]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[int]bool, len(m.levels))
	for pin, level := range m.levels {
		states[pin] = level
	}
	return states
}

// ActivePins returns the set-up pins in ascending order.
func (m *Manager) ActivePins() []int {
	m.mu.Lock()
	pins := make([]int, 0, len(m.modes))
	for pin := range m.modes {
		pins = append(pins, pin)
	}
	m.mu.Unlock()

	sort.Ints(pins)
	return pins
}
