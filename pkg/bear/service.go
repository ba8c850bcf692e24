// Package bear orchestrates the eyes, the mouth and the audio engine.
//
// A Service runs two loops for its whole lifetime: the talk loop drives the
// mouth from the audio amplitude while a performance (speak or play) is in
// progress, and the blink loop closes and reopens the eyes at random
// intervals while idle. At most one performance runs at a time; manual
// moves are rejected while one does.
package bear

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-ruxpin/pkg/actuator"
)

// Audio is the part of audio.Engine the Service uses.
type Audio interface {
	Speak(ctx context.Context, text string) error
	PlaySound(ctx context.Context, name string) error
	SetVolume(ctx context.Context, level int) error
	Volume() int
	MouthPosition() int
}

// Observer receives orchestration events. metrics.Metrics implements it.
type Observer interface {
	ObservePerformance(kind string, d time.Duration, err error)
	ObserveBlink()
	SetBusy(busy bool)
}

// Performance kinds reported to the Observer.
const (
	KindSpeak = "speak"
	KindPlay  = "play"
)

// Behavior holds loop timings and manual move durations.
type Behavior struct {
	TalkInterval     time.Duration
	TalkMoveDuration time.Duration
	IdleInterval     time.Duration
	BlinkMin         time.Duration
	BlinkMax         time.Duration
	BlinkMove        time.Duration
	BlinkPause       time.Duration
	BlinkRecheck     time.Duration
	ManualEyes       time.Duration
	ManualMouth      time.Duration
	BlinkEnabled     bool
}

// DefaultBehavior returns timings tuned on a 1985 bear's worn motors.
func DefaultBehavior() Behavior {
	return Behavior{
		TalkInterval:     40 * time.Millisecond,
		TalkMoveDuration: 150 * time.Millisecond,
		IdleInterval:     150 * time.Millisecond,
		BlinkMin:         3 * time.Second,
		BlinkMax:         7 * time.Second,
		BlinkMove:        600 * time.Millisecond,
		BlinkPause:       200 * time.Millisecond,
		BlinkRecheck:     500 * time.Millisecond,
		ManualEyes:       800 * time.Millisecond,
		ManualMouth:      500 * time.Millisecond,
	}
}

func (b Behavior) withDefaults() Behavior {
	d := DefaultBehavior()
	for _, f := range []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&b.TalkInterval, d.TalkInterval},
		{&b.TalkMoveDuration, d.TalkMoveDuration},
		{&b.IdleInterval, d.IdleInterval},
		{&b.BlinkMin, d.BlinkMin},
		{&b.BlinkMax, d.BlinkMax},
		{&b.BlinkMove, d.BlinkMove},
		{&b.BlinkRecheck, d.BlinkRecheck},
		{&b.ManualEyes, d.ManualEyes},
		{&b.ManualMouth, d.ManualMouth},
	} {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	return b
}

// Config wires a Service.
type Config struct {
	Eyes        *actuator.Actuator
	Mouth       *actuator.Actuator
	Audio       Audio
	Behavior    Behavior
	PhrasesFile string
	Logger      *slog.Logger
	Observer    Observer

	// Rand returns a value in [0, 1) used to pick blink delays.
	// Nil uses math/rand/v2.
	Rand func() float64
}

// State is a point-in-time view of the bear.
type State struct {
	Eyes          actuator.State `json:"eyes"`
	Mouth         actuator.State `json:"mouth"`
	EyesPosition  int            `json:"eyes_position"`
	MouthPosition int            `json:"mouth_position"`
	IsBusy        bool           `json:"is_busy"`
	Volume        int            `json:"volume"`
	BlinkEnabled  bool           `json:"blink_enabled"`
}

// Service is the bear orchestrator.
type Service struct {
	eyes        *actuator.Actuator
	mouth       *actuator.Actuator
	audio       Audio
	behavior    Behavior
	phrasesFile string
	logger      *slog.Logger
	observer    Observer
	rand        func() float64

	busy  atomic.Bool
	blink atomic.Bool
	phase atomic.Int32

	// mouthSync is true while the talk loop owns the mouth. talkMu is held
	// for each talk step so a performance can take the mouth back cleanly.
	mouthSync atomic.Bool
	talkMu    sync.Mutex

	lifeMu sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	// show is the performance in flight, if any. Stop cancels it and waits
	// for it before touching the actuators.
	showMu sync.Mutex
	show   *performance

	phrasesMu sync.RWMutex
	phrases   map[string]string
}

// New validates cfg and returns a Service in the Uninitialized phase.
func New(cfg Config) (*Service, error) {
	if cfg.Eyes == nil || cfg.Mouth == nil {
		return nil, errors.New("bear: eyes and mouth actuators are required")
	}
	if cfg.Audio == nil {
		return nil, errors.New("bear: audio engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	cfg.Behavior = cfg.Behavior.withDefaults()
	if cfg.Behavior.BlinkMax < cfg.Behavior.BlinkMin {
		return nil, errors.New("bear: blink max must not be less than blink min")
	}

	s := &Service{
		eyes:        cfg.Eyes,
		mouth:       cfg.Mouth,
		audio:       cfg.Audio,
		behavior:    cfg.Behavior,
		phrasesFile: cfg.PhrasesFile,
		logger:      cfg.Logger.With("component", "bear"),
		observer:    cfg.Observer,
		rand:        cfg.Rand,
		phrases:     make(map[string]string),
	}
	s.blink.Store(cfg.Behavior.BlinkEnabled)
	return s, nil
}

// Phase returns the lifecycle phase.
func (s *Service) Phase() Phase {
	return Phase(s.phase.Load())
}

// Start initializes both actuators, opens the eyes, loads phrases and
// launches the talk and blink loops.
func (s *Service) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.Phase() != Uninitialized {
		return ErrAlreadyStarted
	}
	s.phase.Store(int32(Starting))

	if err := s.startHardware(ctx); err != nil {
		s.eyes.Cleanup()
		s.mouth.Cleanup()
		s.phase.Store(int32(Stopped))
		return &Error{Op: "start", Err: err}
	}

	if err := s.ReloadPhrases(); err != nil {
		s.logger.Error("failed to load phrases", "file", s.phrasesFile, "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return s.talkLoop(gctx) })
	g.Go(func() error { return s.blinkLoop(gctx) })
	s.cancel = cancel
	s.group = g

	s.phase.Store(int32(Running))
	s.logger.Info("bear started", "blink_enabled", s.blink.Load())
	return nil
}

func (s *Service) startHardware(ctx context.Context) error {
	if err := s.eyes.Initialize(); err != nil {
		return err
	}
	if err := s.mouth.Initialize(); err != nil {
		return err
	}
	return s.eyes.Open(ctx)
}

// Stop interrupts any performance and waits for it until ctx expires,
// cancels the loops and waits for them, then closes both actuators and
// releases their pins. It is safe to call more than once.
func (s *Service) Stop(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	switch s.Phase() {
	case Uninitialized:
		s.phase.Store(int32(Stopped))
		return nil
	case Stopped:
		return nil
	}
	s.phase.Store(int32(Stopping))
	s.logger.Info("stopping bear")
	s.drain(ctx)

	var loopErr error
	if s.cancel != nil {
		s.cancel()
		if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			loopErr = &Error{Op: "stop", Err: err}
			s.logger.Error("loop exited unexpectedly", "error", err)
		}
	}

	closeCtx := context.WithoutCancel(ctx)
	if err := s.eyes.Close(closeCtx); err != nil {
		s.logger.Error("failed to close eyes", "error", err)
	}
	if err := s.mouth.Close(closeCtx); err != nil {
		s.logger.Error("failed to close mouth", "error", err)
	}
	s.eyes.Cleanup()
	s.mouth.Cleanup()

	s.phase.Store(int32(Stopped))
	s.logger.Info("bear stopped")
	return loopErr
}

func (s *Service) checkRunning() error {
	if s.Phase() != Running {
		return ErrNotRunning
	}
	return nil
}

// State returns a snapshot without waiting for any move in progress.
func (s *Service) State() State {
	eyes := s.eyes.Snapshot()
	mouth := s.mouth.Snapshot()
	return State{
		Eyes:          eyes.State,
		Mouth:         mouth.State,
		EyesPosition:  eyes.Position,
		MouthPosition: mouth.Position,
		IsBusy:        s.busy.Load(),
		Volume:        s.audio.Volume(),
		BlinkEnabled:  s.blink.Load(),
	}
}

// IsBusy reports whether a performance is in progress.
func (s *Service) IsBusy() bool {
	return s.busy.Load()
}

// UpdatePositions moves the eyes and/or mouth to Open or Closed using the
// slow manual durations. It fails with ErrBusy during a performance.
func (s *Service) UpdatePositions(ctx context.Context, eyes, mouth *actuator.State) (State, error) {
	if err := s.checkRunning(); err != nil {
		return s.State(), err
	}
	if s.busy.Load() {
		return s.State(), ErrBusy
	}

	if eyes != nil {
		if err := s.eyes.SetPosition(ctx, *eyes, s.behavior.ManualEyes); err != nil {
			return s.State(), &Error{Op: "update_positions", Err: err}
		}
	}
	if mouth != nil {
		if err := s.mouth.SetPosition(ctx, *mouth, s.behavior.ManualMouth); err != nil {
			return s.State(), &Error{Op: "update_positions", Err: err}
		}
	}

	st := s.State()
	s.logger.Info("positions updated", "eyes", st.Eyes, "mouth", st.Mouth)
	return st, nil
}

// Speak synthesizes text and performs it.
func (s *Service) Speak(ctx context.Context, text string) error {
	return s.perform(ctx, KindSpeak, func(ctx context.Context) error {
		return s.audio.Speak(ctx, text)
	})
}

// Play performs the named sound from the sounds directory.
func (s *Service) Play(ctx context.Context, sound string) error {
	return s.perform(ctx, KindPlay, func(ctx context.Context) error {
		return s.audio.PlaySound(ctx, sound)
	})
}

type performance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// begin registers a performance unless Stop has already started.
func (s *Service) begin(ctx context.Context) (context.Context, *performance, error) {
	s.showMu.Lock()
	defer s.showMu.Unlock()

	if s.Phase() != Running {
		return nil, nil, ErrNotRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.show = &performance{cancel: cancel, done: make(chan struct{})}
	return ctx, s.show, nil
}

func (s *Service) end(p *performance) {
	s.showMu.Lock()
	if s.show == p {
		s.show = nil
	}
	s.showMu.Unlock()

	p.cancel()
	close(p.done)
}

// drain cancels the performance in flight and waits for it to close the
// mouth, or for ctx to expire.
func (s *Service) drain(ctx context.Context) {
	s.showMu.Lock()
	p := s.show
	s.showMu.Unlock()

	if p == nil {
		return
	}
	s.logger.Info("interrupting performance")
	p.cancel()
	select {
	case <-p.done:
	case <-ctx.Done():
		s.logger.Warn("performance still running at shutdown", "error", ctx.Err())
	}
}

// perform runs one performance: claim busy, open the eyes, hand the mouth
// to the talk loop for the audio, take it back and close it. busy is
// cleared and the mouth closed however fn exits.
func (s *Service) perform(ctx context.Context, kind string, fn func(context.Context) error) (err error) {
	if err := s.checkRunning(); err != nil {
		return err
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	ctx, show, err := s.begin(ctx)
	if err != nil {
		s.busy.Store(false)
		return err
	}
	defer s.end(show)

	start := time.Now()
	logger := s.logger.With("performance", uuid.NewString(), "kind", kind)
	if s.observer != nil {
		s.observer.SetBusy(true)
	}

	defer func() {
		s.mouthSync.Store(false)
		s.closeMouth(context.WithoutCancel(ctx), logger)

		s.busy.Store(false)
		if s.observer != nil {
			s.observer.SetBusy(false)
			s.observer.ObservePerformance(kind, time.Since(start), err)
		}
		if err != nil {
			logger.Warn("performance failed", "error", err, "elapsed", time.Since(start))
		} else {
			logger.Info("performance finished", "elapsed", time.Since(start))
		}
	}()

	if s.eyes.State() != actuator.Open {
		if err := s.eyes.Open(ctx); err != nil {
			return &Error{Op: kind, Err: err}
		}
	}

	s.mouthSync.Store(true)
	if err := fn(ctx); err != nil {
		return &Error{Op: kind, Err: err}
	}
	return nil
}

// closeMouth waits for the talk step in flight, then closes the mouth.
func (s *Service) closeMouth(ctx context.Context, logger *slog.Logger) {
	s.talkMu.Lock()
	defer s.talkMu.Unlock()

	if s.mouth.State() == actuator.Closed {
		return
	}
	if err := s.mouth.Close(ctx); err != nil {
		logger.Error("failed to close mouth", "error", err)
	}
}

// SetVolume passes level to the audio engine.
func (s *Service) SetVolume(ctx context.Context, level int) error {
	if err := s.audio.SetVolume(ctx, level); err != nil {
		return &Error{Op: "set_volume", Err: err}
	}
	return nil
}

// SetBlinkEnabled turns idle blinking on or off.
func (s *Service) SetBlinkEnabled(enabled bool) {
	s.blink.Store(enabled)
	s.logger.Info("blinking toggled", "enabled", enabled)
}

// BlinkEnabled reports whether idle blinking is on.
func (s *Service) BlinkEnabled() bool {
	return s.blink.Load()
}
