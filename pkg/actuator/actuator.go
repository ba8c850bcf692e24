// Package actuator drives a single two-directional DC gearmotor.
//
// Each actuator owns three pins: a PWM enable pin and a pair of direction
// pins wired to an H-bridge. Moves are time-bounded (at most MaxDuration),
// serialized per actuator, and always end with the direction pins braked,
// including when the move fails or is cancelled.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/gpio"
)

// Movement limits.
const (
	MinSpeed    = 1
	MaxSpeed    = 1000
	MaxDuration = 2 * time.Second

	// MinMoveDuration is the floor applied to scaled proportional moves.
	MinMoveDuration = 10 * time.Millisecond

	// DefaultDeadBand is the position delta below which proportional moves are skipped.
	DefaultDeadBand = 8

	// DefaultSampleInterval is the position animation cadence (20 Hz).
	DefaultSampleInterval = 50 * time.Millisecond

	// dutyCycle is the PWM duty used for every move.
	dutyCycle = 50
)

// Direction is the H-bridge drive direction.
type Direction int

const (
	Brake Direction = iota
	Opening
	Closing
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	default:
		return "brake"
	}
}

// State is the discrete position of an actuator.
type State string

const (
	Open    State = "open"
	Closed  State = "closed"
	Unknown State = "unknown"
)

// stateFor derives the discrete state from a position percentage.
func stateFor(position int) State {
	switch position {
	case 100:
		return Open
	case 0:
		return Closed
	default:
		return Unknown
	}
}

// PinAssignment is the set of pins driving one motor.
type PinAssignment struct {
	PWM  int `yaml:"pwm" json:"pwm" validate:"gte=0,lte=27"`
	Dir  int `yaml:"dir" json:"dir" validate:"gte=0,lte=27"`
	CDir int `yaml:"cdir" json:"cdir" validate:"gte=0,lte=27"`
}

// Validate checks the pins are distinct and in range.
func (p PinAssignment) Validate() error {
	for _, pin := range []int{p.PWM, p.Dir, p.CDir} {
		if pin < 0 || pin > gpio.MaxPin {
			return fmt.Errorf("%w: pin %d out of range 0-%d", ErrInvalidPins, pin, gpio.MaxPin)
		}
	}
	if p.PWM == p.Dir || p.PWM == p.CDir || p.Dir == p.CDir {
		return fmt.Errorf("%w: pins must be distinct (pwm=%d dir=%d cdir=%d)", ErrInvalidPins, p.PWM, p.Dir, p.CDir)
	}
	return nil
}

// Pins is the subset of gpio.Manager used by an actuator.
type Pins interface {
	Setup(pin int, mode gpio.Mode, pull gpio.Pull) error
	Output(pin int, high bool) error
	CreatePWM(pin int, frequency float64) (gpio.PWM, error)
}

// MoveObserver is notified after every physical move.
type MoveObserver interface {
	ObserveMove(actuator string, dir Direction, err error)
}

// Config holds actuator settings.
type Config struct {
	Name            string
	Pins            PinAssignment
	Speed           int           // PWM frequency in Hz (1..1000)
	DefaultDuration time.Duration // used by Open and Close
	DeadBand        int           // 0 uses DefaultDeadBand
	SampleInterval  time.Duration // 0 uses DefaultSampleInterval
	Logger          *slog.Logger
	Observer        MoveObserver
}

// Snapshot is a point-in-time view of an actuator. Before the first move
// State is Unknown and Position is 0: the motor was not homed at power-on.
type Snapshot struct {
	Name     string `json:"name"`
	State    State  `json:"state"`
	Position int    `json:"position"`
}

// Actuator controls one motor.
type Actuator struct {
	name     string
	pins     PinAssignment
	speed    int
	duration time.Duration
	deadBand int
	interval time.Duration
	gpio     Pins
	logger   *slog.Logger
	observer MoveObserver

	// moveMu serializes movement commands and is held for the whole move.
	moveMu sync.Mutex
	pwm    gpio.PWM

	mu       sync.RWMutex
	state    State
	position int
}

// New validates cfg and returns an uninitialized actuator. No pin is touched
// until Initialize.
func New(cfg Config, pins Pins) (*Actuator, error) {
	if cfg.Speed < MinSpeed || cfg.Speed > MaxSpeed {
		return nil, &Error{Actuator: cfg.Name, Op: "new", Err: fmt.Errorf("%w, got %d", ErrInvalidSpeed, cfg.Speed)}
	}
	if err := checkDuration(cfg.DefaultDuration); err != nil {
		return nil, &Error{Actuator: cfg.Name, Op: "new", Err: err}
	}
	if err := cfg.Pins.Validate(); err != nil {
		return nil, &Error{Actuator: cfg.Name, Op: "new", Err: err}
	}
	if pins == nil {
		return nil, &Error{Actuator: cfg.Name, Op: "new", Err: fmt.Errorf("%w: nil pin driver", ErrInvalidPins)}
	}

	deadBand := cfg.DeadBand
	if deadBand <= 0 {
		deadBand = DefaultDeadBand
	}
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Actuator{
		name:     cfg.Name,
		pins:     cfg.Pins,
		speed:    cfg.Speed,
		duration: cfg.DefaultDuration,
		deadBand: deadBand,
		interval: interval,
		gpio:     pins,
		logger:   logger.With("component", "actuator", "actuator", cfg.Name),
		observer: cfg.Observer,
		state:    Unknown,
	}

	a.logger.Info("actuator configured",
		"pwm", cfg.Pins.PWM, "dir", cfg.Pins.Dir, "cdir", cfg.Pins.CDir,
		"speed_hz", cfg.Speed, "duration", cfg.DefaultDuration)
	return a, nil
}

// Name returns the actuator name.
func (a *Actuator) Name() string {
	return a.name
}

// Pins returns the pin assignment.
func (a *Actuator) Pins() PinAssignment {
	return a.pins
}

// DefaultDuration returns the duration used by Open and Close.
func (a *Actuator) DefaultDuration() time.Duration {
	return a.duration
}

// Initialize sets up the pins as outputs, creates the PWM handle and brakes.
// It must be called exactly once.
func (a *Actuator) Initialize() error {
	a.moveMu.Lock()
	defer a.moveMu.Unlock()

	if a.pwm != nil {
		return &Error{Actuator: a.name, Op: "initialize", Err: ErrAlreadyInitialized}
	}

	for _, pin := range []int{a.pins.PWM, a.pins.Dir, a.pins.CDir} {
		if err := a.gpio.Setup(pin, gpio.Output, gpio.PullNone); err != nil {
			return &Error{Actuator: a.name, Op: "initialize", Err: err}
		}
	}

	pwm, err := a.gpio.CreatePWM(a.pins.PWM, float64(a.speed))
	if err != nil {
		return &Error{Actuator: a.name, Op: "initialize", Err: err}
	}

	if err := a.setDirection(Brake); err != nil {
		return &Error{Actuator: a.name, Op: "initialize", Err: err}
	}

	a.mu.Lock()
	a.pwm = pwm
	a.mu.Unlock()

	a.logger.Info("actuator initialized")
	return nil
}

// Open moves fully open using the default duration.
func (a *Actuator) Open(ctx context.Context) error {
	return a.OpenFor(ctx, a.duration)
}

// Close moves fully closed using the default duration.
func (a *Actuator) Close(ctx context.Context) error {
	return a.CloseFor(ctx, a.duration)
}

// OpenFor moves fully open over d.
func (a *Actuator) OpenFor(ctx context.Context, d time.Duration) error {
	if err := checkDuration(d); err != nil {
		return &Error{Actuator: a.name, Op: "open", Err: err}
	}
	if err := a.run(ctx, "open", 100, d, false); err != nil {
		return err
	}
	a.logger.Debug("actuator opened", "duration", d)
	return nil
}

// CloseFor moves fully closed over d.
func (a *Actuator) CloseFor(ctx context.Context, d time.Duration) error {
	if err := checkDuration(d); err != nil {
		return &Error{Actuator: a.name, Op: "close", Err: err}
	}
	if err := a.run(ctx, "close", 0, d, false); err != nil {
		return err
	}
	a.logger.Debug("actuator closed", "duration", d)
	return nil
}

// SetPosition moves to a discrete state over d. Unknown is rejected.
func (a *Actuator) SetPosition(ctx context.Context, s State, d time.Duration) error {
	switch s {
	case Open:
		return a.OpenFor(ctx, d)
	case Closed:
		return a.CloseFor(ctx, d)
	default:
		return &Error{Actuator: a.name, Op: "set_position", Err: fmt.Errorf("%w: %q", ErrInvalidPosition, s)}
	}
}

// SetPositionPercent moves proportionally toward target (0 closed, 100 open).
// The travel time is d scaled by the distance covered, with a floor of
// MinMoveDuration. Moves smaller than the dead-band are skipped.
func (a *Actuator) SetPositionPercent(ctx context.Context, target int, d time.Duration) error {
	if target < 0 || target > 100 {
		return &Error{Actuator: a.name, Op: "set_position_percent",
			Err: fmt.Errorf("%w: %d not in 0-100", ErrInvalidPosition, target)}
	}
	if err := checkDuration(d); err != nil {
		return &Error{Actuator: a.name, Op: "set_position_percent", Err: err}
	}
	return a.run(ctx, "set_position_percent", target, d, true)
}

// run performs a move under the movement lock. When scaled is true the
// dead-band applies and d is scaled by the distance to target.
func (a *Actuator) run(ctx context.Context, op string, target int, d time.Duration, scaled bool) error {
	a.moveMu.Lock()
	defer a.moveMu.Unlock()

	if a.pwm == nil {
		return &Error{Actuator: a.name, Op: op, Err: ErrNotInitialized}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Actuator: a.name, Op: op, Err: err}
	}

	current := a.Position()
	delta := target - current
	if delta < 0 {
		delta = -delta
	}

	if scaled {
		if delta < a.deadBand {
			return nil
		}
		d = time.Duration(float64(d) * float64(delta) / 100)
		if d < MinMoveDuration {
			d = MinMoveDuration
		}
	}

	dir := Opening
	if target < current || (target == current && target == 0) {
		dir = Closing
	}

	err := a.move(ctx, dir, current, target, d)
	if a.observer != nil {
		a.observer.ObserveMove(a.name, dir, err)
	}
	if err != nil {
		return &Error{Actuator: a.name, Op: op, Err: err}
	}
	return nil
}

// move energizes the motor and animates the position. Must be called with
// moveMu held. The motor is always braked before returning.
func (a *Actuator) move(ctx context.Context, dir Direction, start, target int, d time.Duration) (err error) {
	defer func() {
		if err != nil {
			a.failSafe()
		}
	}()

	if err := a.setDirection(dir); err != nil {
		return err
	}
	if err := a.pwm.Start(dutyCycle); err != nil {
		return err
	}

	begin := time.Now()
	timer := time.NewTimer(a.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		elapsed := time.Since(begin)
		if elapsed >= d {
			a.setPosition(target)
			break
		}

		progress := float64(elapsed) / float64(d)
		a.setPosition(start + int(float64(target-start)*progress))

		wait := a.interval
		if remaining := d - elapsed; remaining < wait {
			wait = remaining
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := a.pwm.Stop(); err != nil {
		return err
	}
	if err := a.setDirection(Brake); err != nil {
		return err
	}

	a.logger.Debug("actuator moved", "direction", dir, "duration", d, "position", target)
	return nil
}

// failSafe stops the PWM and brakes, ignoring errors.
func (a *Actuator) failSafe() {
	if err := a.pwm.Stop(); err != nil {
		a.logger.Warn("fail-safe pwm stop failed", "error", err)
	}
	if err := a.setDirection(Brake); err != nil {
		a.logger.Error("fail-safe brake failed", "error", err)
	}
}

// setDirection drives the direction pins. The pin being released is always
// lowered before the other is raised, so both are never high together.
func (a *Actuator) setDirection(dir Direction) error {
	var lower, raise int
	switch dir {
	case Opening:
		lower, raise = a.pins.CDir, a.pins.Dir
	case Closing:
		lower, raise = a.pins.Dir, a.pins.CDir
	default:
		if err := a.gpio.Output(a.pins.Dir, false); err != nil {
			return err
		}
		return a.gpio.Output(a.pins.CDir, false)
	}

	if err := a.gpio.Output(lower, false); err != nil {
		return err
	}
	return a.gpio.Output(raise, true)
}

// Cleanup stops the PWM and brakes. It is safe to call more than once and
// never returns an error; failures are logged.
func (a *Actuator) Cleanup() {
	a.mu.RLock()
	pwm := a.pwm
	a.mu.RUnlock()

	if pwm == nil {
		return
	}
	if err := pwm.Stop(); err != nil {
		a.logger.Error("cleanup pwm stop failed", "error", err)
	}
	if err := a.setDirection(Brake); err != nil {
		a.logger.Error("cleanup brake failed", "error", err)
	}
	a.logger.Info("actuator cleaned up")
}

func (a *Actuator) setPosition(p int) {
	a.mu.Lock()
	a.position = p
	a.state = stateFor(p)
	a.mu.Unlock()
}

// Position returns the current position percentage.
func (a *Actuator) Position() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.position
}

// State returns the discrete state.
func (a *Actuator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Snapshot returns the name, state and position together.
func (a *Actuator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{Name: a.name, State: a.state, Position: a.position}
}

// String implements fmt.Stringer.
func (a *Actuator) String() string {
	s := a.Snapshot()
	return fmt.Sprintf("Actuator(%s, %s, %d%%, %dHz, %s)", s.Name, s.State, s.Position, a.speed, a.duration)
}

func checkDuration(d time.Duration) error {
	if d <= 0 || d > MaxDuration {
		return fmt.Errorf("%w, got %s", ErrInvalidDuration, d)
	}
	return nil
}
