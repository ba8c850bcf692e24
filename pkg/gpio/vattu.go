package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/hjkoskel/govattu"
)

// Vattu drives Raspberry Pi pins through memory-mapped registers.
// PWM is generated in software because the motor enable pins are not on the
// hardware PWM channels.
type Vattu struct {
	mu     sync.Mutex
	hw     govattu.Vattu
	pins   map[int]bool
	closed bool
}

// OpenVattu maps the GPIO registers. It requires /dev/gpiomem or root.
func OpenVattu() (*Vattu, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("gpio: open vattu: %w", err)
	}
	return &Vattu{hw: hw, pins: make(map[int]bool)}, nil
}

// Name returns "vattu".
func (v *Vattu) Name() string {
	return "vattu"
}

// Setup configures pin as an output. Inputs and pull resistors are not
// needed by this hardware and are rejected.
func (v *Vattu) Setup(pin int, mode Mode, pull Pull) error {
	if err := checkPin(pin); err != nil {
		return err
	}
	if mode != Output || pull != PullNone {
		return ErrUnsupported
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	v.hw.PinMode(uint8(pin), govattu.ALToutput)
	v.hw.PinClear(uint8(pin))
	v.pins[pin] = true
	return nil
}

// Output drives pin high or low.
func (v *Vattu) Output(pin int, high bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if !v.pins[pin] {
		return ErrNotSetUp
	}
	v.write(pin, high)
	return nil
}

// NewPWM returns a software PWM on pin.
func (v *Vattu) NewPWM(pin int, frequency float64) (PWM, error) {
	if frequency <= 0 {
		return nil, ErrFrequency
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrClosed
	}
	if !v.pins[pin] {
		return nil, ErrNotSetUp
	}
	return &softPWM{owner: v, pin: pin, frequency: frequency}, nil
}

// Cleanup drives the given pins low and forgets them. With no arguments
// every pin is released and the register mapping is closed.
func (v *Vattu) Cleanup(pins ...int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}

	all := len(pins) == 0
	if all {
		for pin := range v.pins {
			pins = append(pins, pin)
		}
	}
	for _, pin := range pins {
		if v.pins[pin] {
			v.write(pin, false)
			delete(v.pins, pin)
		}
	}
	if all {
		v.closed = true
		return v.hw.Close()
	}
	return nil
}

// write must be called with v.mu held.
func (v *Vattu) write(pin int, high bool) {
	if high {
		v.hw.PinSet(uint8(pin))
	} else {
		v.hw.PinClear(uint8(pin))
	}
}

func (v *Vattu) set(pin int, high bool) {
	v.mu.Lock()
	if !v.closed && v.pins[pin] {
		v.write(pin, high)
	}
	v.mu.Unlock()
}

// softPWM toggles a pin from a goroutine.
type softPWM struct {
	owner *Vattu
	pin   int

	mu        sync.Mutex
	frequency float64
	duty      float64
	stop      chan struct{}
	done      chan struct{}
}

func (p *softPWM) Start(duty float64) error {
	if err := checkDuty(duty); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.duty = duty
	if p.stop != nil {
		return nil
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)
	return nil
}

func (p *softPWM) Stop() error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	p.owner.set(p.pin, false)
	return nil
}

func (p *softPWM) ChangeDutyCycle(duty float64) error {
	if err := checkDuty(duty); err != nil {
		return err
	}
	p.mu.Lock()
	p.duty = duty
	p.mu.Unlock()
	return nil
}

func (p *softPWM) ChangeFrequency(hz float64) error {
	if hz <= 0 {
		return ErrFrequency
	}
	p.mu.Lock()
	p.frequency = hz
	p.mu.Unlock()
	return nil
}

func (p *softPWM) timing() (on, off time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	period := time.Duration(float64(time.Second) / p.frequency)
	on = time.Duration(float64(period) * p.duty / 100)
	return on, period - on
}

func (p *softPWM) run(stop, done chan struct{}) {
	defer close(done)

	for {
		on, off := p.timing()

		if on > 0 {
			p.owner.set(p.pin, true)
			if !sleepOrStop(on, stop) {
				return
			}
		}
		if off > 0 {
			p.owner.set(p.pin, false)
			if !sleepOrStop(off, stop) {
				return
			}
		}
	}
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
