package gpio

import (
	"sync"
	"time"
)

// Event is a single recorded pin operation on the simulated backend.
type Event struct {
	Pin   int
	Op    string
	Value float64
	Time  time.Time
}

// Simulated is an in-memory Driver. It records every operation so tests can
// assert on the exact sequence of pin writes.
type Simulated struct {
	mu     sync.Mutex
	modes  map[int]Mode
	levels map[int]bool
	pwms   map[int]*SimulatedPWM
	events []Event
	closed bool

	// FailSetup, when set, is consulted before every Setup.
	FailSetup func(pin int) error
	// FailOutput, when set, is consulted before every Output.
	FailOutput func(pin int, high bool) error
}

// NewSimulated creates an empty simulated driver.
func NewSimulated() *Simulated {
	return &Simulated{
		modes:  make(map[int]Mode),
		levels: make(map[int]bool),
		pwms:   make(map[int]*SimulatedPWM),
	}
}

// Name returns "sim".
func (s *Simulated) Name() string {
	return "sim"
}

// Setup records the pin mode.
func (s *Simulated) Setup(pin int, mode Mode, pull Pull) error {
	if err := checkPin(pin); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.FailSetup != nil {
		if err := s.FailSetup(pin); err != nil {
			return err
		}
	}
	s.modes[pin] = mode
	s.levels[pin] = false
	s.record(pin, "setup", float64(mode))
	return nil
}

// Output records the level written to pin.
func (s *Simulated) Output(pin int, high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if mode, ok := s.modes[pin]; !ok || mode != Output {
		return ErrNotSetUp
	}
	if s.FailOutput != nil {
		if err := s.FailOutput(pin, high); err != nil {
			return err
		}
	}
	s.levels[pin] = high
	s.record(pin, "output", boolValue(high))
	return nil
}

// NewPWM creates a simulated PWM handle.
func (s *Simulated) NewPWM(pin int, frequency float64) (PWM, error) {
	if frequency <= 0 {
		return nil, ErrFrequency
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.modes[pin]; !ok {
		return nil, ErrNotSetUp
	}
	pwm := &SimulatedPWM{sim: s, pin: pin, frequency: frequency}
	s.pwms[pin] = pwm
	return pwm, nil
}

// Cleanup forgets the given pins, or all pins when none are given.
func (s *Simulated) Cleanup(pins ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(pins) == 0 {
		for pin := range s.modes {
			pins = append(pins, pin)
		}
	}
	for _, pin := range pins {
		if pwm, ok := s.pwms[pin]; ok {
			pwm.running = false
			delete(s.pwms, pin)
		}
		delete(s.modes, pin)
		delete(s.levels, pin)
		s.record(pin, "cleanup", 0)
	}
	return nil
}

// Close marks the driver closed. Further operations return ErrClosed.
func (s *Simulated) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Level reports the current level of pin.
func (s *Simulated) Level(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pin]
}

// IsSetUp reports whether pin is currently configured.
func (s *Simulated) IsSetUp(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.modes[pin]
	return ok
}

// PWM returns the PWM handle for pin, or nil.
func (s *Simulated) PWM(pin int) *SimulatedPWM {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pwms[pin]
}

// Events returns a copy of the recorded operations.
func (s *Simulated) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OutputCount returns how many times pin was driven to the given level.
func (s *Simulated) OutputCount(pin int, high bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := boolValue(high)
	n := 0
	for _, e := range s.events {
		if e.Pin == pin && e.Op == "output" && e.Value == want {
			n++
		}
	}
	return n
}

// ResetEvents clears the event log.
func (s *Simulated) ResetEvents() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *Simulated) record(pin int, op string, value float64) {
	s.events = append(s.events, Event{Pin: pin, Op: op, Value: value, Time: time.Now()})
}

// SimulatedPWM is the PWM handle returned by Simulated.
type SimulatedPWM struct {
	sim       *Simulated
	pin       int
	frequency float64
	duty      float64
	running   bool
	starts    int
	changes   int
}

// Start begins PWM output at duty percent.
func (p *SimulatedPWM) Start(duty float64) error {
	if err := checkDuty(duty); err != nil {
		return err
	}
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	p.duty = duty
	p.running = true
	p.starts++
	p.sim.record(p.pin, "pwm_start", duty)
	return nil
}

// Stop halts PWM output.
func (p *SimulatedPWM) Stop() error {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	p.running = false
	p.sim.record(p.pin, "pwm_stop", 0)
	return nil
}

// ChangeDutyCycle updates the duty percent.
func (p *SimulatedPWM) ChangeDutyCycle(duty float64) error {
	if err := checkDuty(duty); err != nil {
		return err
	}
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	p.duty = duty
	p.changes++
	p.sim.record(p.pin, "pwm_duty", duty)
	return nil
}

// ChangeFrequency updates the PWM frequency.
func (p *SimulatedPWM) ChangeFrequency(hz float64) error {
	if hz <= 0 {
		return ErrFrequency
	}
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()

	p.frequency = hz
	p.sim.record(p.pin, "pwm_freq", hz)
	return nil
}

// Running reports whether the PWM is started.
func (p *SimulatedPWM) Running() bool {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.running
}

// Duty returns the last duty cycle.
func (p *SimulatedPWM) Duty() float64 {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.duty
}

// Frequency returns the configured frequency.
func (p *SimulatedPWM) Frequency() float64 {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.frequency
}

// Starts returns how many times Start was called.
func (p *SimulatedPWM) Starts() int {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.starts
}

// DutyChanges returns how many times ChangeDutyCycle was called.
func (p *SimulatedPWM) DutyChanges() int {
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	return p.changes
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
