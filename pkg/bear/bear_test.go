package bear

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/actuator"
	"github.com/teslashibe/go-ruxpin/pkg/audio"
	"github.com/teslashibe/go-ruxpin/pkg/gpio"
	"github.com/teslashibe/go-ruxpin/pkg/tts"
)

var (
	eyesPins  = actuator.PinAssignment{PWM: 21, Dir: 16, CDir: 20}
	mouthPins = actuator.PinAssignment{PWM: 25, Dir: 7, CDir: 8}
)

func fastBehavior() Behavior {
	return Behavior{
		TalkInterval:     5 * time.Millisecond,
		TalkMoveDuration: 20 * time.Millisecond,
		IdleInterval:     5 * time.Millisecond,
		BlinkMin:         30 * time.Millisecond,
		BlinkMax:         40 * time.Millisecond,
		BlinkMove:        20 * time.Millisecond,
		BlinkPause:       5 * time.Millisecond,
		BlinkRecheck:     5 * time.Millisecond,
		ManualEyes:       20 * time.Millisecond,
		ManualMouth:      20 * time.Millisecond,
	}
}

type moveLog struct {
	mu    sync.Mutex
	moves map[string][]actuator.Direction
}

func (m *moveLog) ObserveMove(name string, dir actuator.Direction, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.moves == nil {
		m.moves = make(map[string][]actuator.Direction)
	}
	m.moves[name] = append(m.moves[name], dir)
}

func (m *moveLog) count(name string, dir actuator.Direction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.moves[name] {
		if d == dir {
			n++
		}
	}
	return n
}

type recordingObserver struct {
	mu           sync.Mutex
	blinks       int
	performances []error
	busy         []bool
}

func (r *recordingObserver) ObservePerformance(_ string, _ time.Duration, err error) {
	r.mu.Lock()
	r.performances = append(r.performances, err)
	r.mu.Unlock()
}

func (r *recordingObserver) ObserveBlink() {
	r.mu.Lock()
	r.blinks++
	r.mu.Unlock()
}

func (r *recordingObserver) SetBusy(b bool) {
	r.mu.Lock()
	r.busy = append(r.busy, b)
	r.mu.Unlock()
}

func (r *recordingObserver) blinkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blinks
}

// fakeAudio blocks Speak and PlaySound until release is closed, when set.
type fakeAudio struct {
	err     error
	release chan struct{}
	started chan struct{}
	mouth   atomic.Int32
	volume  atomic.Int32
	calls   atomic.Int32
}

func (f *fakeAudio) perform(ctx context.Context) error {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeAudio) Speak(ctx context.Context, _ string) error     { return f.perform(ctx) }
func (f *fakeAudio) PlaySound(ctx context.Context, _ string) error { return f.perform(ctx) }
func (f *fakeAudio) MouthPosition() int                            { return int(f.mouth.Load()) }
func (f *fakeAudio) Volume() int                                   { return int(f.volume.Load()) }

func (f *fakeAudio) SetVolume(_ context.Context, level int) error {
	if level < 0 || level > 100 {
		return audio.ErrVolumeRange
	}
	f.volume.Store(int32(level))
	return nil
}

type harness struct {
	svc   *Service
	sim   *gpio.Simulated
	moves *moveLog
	obs   *recordingObserver
}

func newHarness(t *testing.T, a Audio, b Behavior, phrases string) *harness {
	t.Helper()
	sim := gpio.NewSimulated()
	mgr := gpio.NewManager(sim, nil)
	moves := &moveLog{}

	newActuator := func(name string, pins actuator.PinAssignment) *actuator.Actuator {
		act, err := actuator.New(actuator.Config{
			Name:            name,
			Pins:            pins,
			Speed:           100,
			DefaultDuration: 30 * time.Millisecond,
			SampleInterval:  5 * time.Millisecond,
			Observer:        moves,
		}, mgr)
		if err != nil {
			t.Fatal(err)
		}
		return act
	}

	obs := &recordingObserver{}
	svc, err := New(Config{
		Eyes:        newActuator("eyes", eyesPins),
		Mouth:       newActuator("mouth", mouthPins),
		Audio:       a,
		Behavior:    b,
		PhrasesFile: phrases,
		Observer:    obs,
		Rand:        func() float64 { return 0.5 },
	})
	if err != nil {
		t.Fatal(err)
	}
	return &harness{svc: svc, sim: sim, moves: moves, obs: obs}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.svc.Stop(context.Background()) })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func assertBraked(t *testing.T, sim *gpio.Simulated, pins actuator.PinAssignment) {
	t.Helper()
	if sim.Level(pins.Dir) || sim.Level(pins.CDir) {
		t.Errorf("pins %+v not braked", pins)
	}
}

func TestService_Scenario(t *testing.T) {
	dir := t.TempDir()
	engine, err := audio.New(audio.Config{
		SoundsDir: dir,
		TTSDir:    filepath.Join(dir, "tts"),
		Volume:    90,
		Player:    audio.NewSimulated(),
		Mixer:     audio.NewSimulated(),
		Synth:     tts.NewMock(),
	})
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, engine, fastBehavior(), "")

	if h.svc.Phase() != Uninitialized {
		t.Fatalf("phase = %v", h.svc.Phase())
	}
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.svc.Phase() != Running {
		t.Errorf("phase = %v, want running", h.svc.Phase())
	}
	if st := h.svc.State(); st.Eyes != actuator.Open || st.EyesPosition != 100 {
		t.Errorf("eyes not open after start: %+v", st)
	}

	if err := h.svc.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	st := h.svc.State()
	if st.Mouth != actuator.Closed || st.IsBusy {
		t.Errorf("after speak: %+v", st)
	}
	if h.moves.count("mouth", actuator.Opening) == 0 {
		t.Error("talk loop never opened the mouth")
	}

	if err := h.svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.svc.Phase() != Stopped {
		t.Errorf("phase = %v, want stopped", h.svc.Phase())
	}
	st = h.svc.State()
	if st.Eyes != actuator.Closed || st.Mouth != actuator.Closed {
		t.Errorf("after stop: %+v", st)
	}
	assertBraked(t, h.sim, eyesPins)
	assertBraked(t, h.sim, mouthPins)

	if err := h.svc.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if err := h.svc.Speak(context.Background(), "again"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Speak after Stop = %v, want ErrNotRunning", err)
	}
}

func TestService_BusyRejectsCommands(t *testing.T) {
	fa := &fakeAudio{release: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, fa, fastBehavior(), "")
	h.start(t)

	done := make(chan error, 1)
	go func() { done <- h.svc.Speak(context.Background(), "long story") }()
	<-fa.started

	if !h.svc.IsBusy() || !h.svc.State().IsBusy {
		t.Fatal("expected busy during performance")
	}

	before := h.svc.State()
	eventsBefore := len(h.sim.Events())

	if err := h.svc.Speak(context.Background(), "interrupt"); err != ErrBusy {
		t.Errorf("Speak = %v, want ErrBusy", err)
	}
	if err := h.svc.Play(context.Background(), "growl"); err != ErrBusy {
		t.Errorf("Play = %v, want ErrBusy", err)
	}
	closed := actuator.Closed
	if _, err := h.svc.UpdatePositions(context.Background(), &closed, nil); err != ErrBusy {
		t.Errorf("UpdatePositions = %v, want ErrBusy", err)
	}
	if fa.calls.Load() != 1 {
		t.Errorf("rejected commands reached audio: %d calls", fa.calls.Load())
	}
	if after := h.svc.State(); after.Eyes != before.Eyes || after.EyesPosition != before.EyesPosition {
		t.Errorf("rejected commands moved the eyes: %+v -> %+v", before, after)
	}
	for _, e := range h.sim.Events()[eventsBefore:] {
		if e.Pin == eyesPins.Dir || e.Pin == eyesPins.CDir || e.Pin == eyesPins.PWM {
			t.Errorf("eyes pin touched while busy: %+v", e)
		}
	}

	close(fa.release)
	if err := <-done; err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if h.svc.IsBusy() {
		t.Error("busy not cleared")
	}
}

func TestService_AudioFailure(t *testing.T) {
	boom := errors.New("aplay: no soundcard")
	fa := &fakeAudio{err: boom}
	fa.mouth.Store(80)
	h := newHarness(t, fa, fastBehavior(), "")
	h.start(t)

	err := h.svc.Play(context.Background(), "growl")
	var be *Error
	if !errors.As(err, &be) || be.Op != KindPlay || !errors.Is(err, boom) {
		t.Fatalf("Play = %v, want bear error wrapping %v", err, boom)
	}
	if h.svc.IsBusy() {
		t.Error("busy not cleared after failure")
	}
	if st := h.svc.State(); st.Mouth != actuator.Closed {
		t.Errorf("mouth = %v, want closed", st.Mouth)
	}

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	if len(h.obs.performances) != 1 || h.obs.performances[0] == nil {
		t.Errorf("observer saw %v", h.obs.performances)
	}
	if len(h.obs.busy) != 2 || !h.obs.busy[0] || h.obs.busy[1] {
		t.Errorf("busy transitions = %v", h.obs.busy)
	}
}

func TestService_MissingSound(t *testing.T) {
	engine, err := audio.New(audio.Config{SoundsDir: t.TempDir(), Player: audio.NewSimulated(), Mixer: audio.NewSimulated()})
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, engine, fastBehavior(), "")
	h.start(t)

	if err := h.svc.Play(context.Background(), "nope"); !errors.Is(err, audio.ErrFileNotFound) {
		t.Errorf("Play = %v, want ErrFileNotFound", err)
	}
	if h.svc.IsBusy() || h.svc.State().Mouth != actuator.Closed {
		t.Errorf("state after failure: %+v", h.svc.State())
	}
}

func TestService_Blink(t *testing.T) {
	t.Run("blinks while idle", func(t *testing.T) {
		b := fastBehavior()
		b.BlinkEnabled = true
		h := newHarness(t, &fakeAudio{}, b, "")
		h.start(t)

		waitFor(t, "a blink", func() bool { return h.obs.blinkCount() >= 1 })
		if h.moves.count("eyes", actuator.Closing) == 0 {
			t.Error("eyes never closed")
		}
		waitFor(t, "eyes open", func() bool { return h.svc.State().Eyes == actuator.Open })
	})

	t.Run("no blinks while busy", func(t *testing.T) {
		fa := &fakeAudio{release: make(chan struct{}), started: make(chan struct{}, 1)}
		h := newHarness(t, fa, fastBehavior(), "")
		h.start(t)

		done := make(chan error, 1)
		go func() { done <- h.svc.Speak(context.Background(), "hold") }()
		<-fa.started

		h.svc.SetBlinkEnabled(true)
		time.Sleep(300 * time.Millisecond)
		if n := h.obs.blinkCount(); n != 0 {
			t.Errorf("%d blinks during a performance", n)
		}

		close(fa.release)
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	})

	t.Run("disabled by default", func(t *testing.T) {
		h := newHarness(t, &fakeAudio{}, fastBehavior(), "")
		h.start(t)
		if h.svc.BlinkEnabled() {
			t.Fatal("blink should start disabled")
		}
		time.Sleep(150 * time.Millisecond)
		if n := h.obs.blinkCount(); n != 0 {
			t.Errorf("%d blinks while disabled", n)
		}
	})

	t.Run("no blink with eyes closed", func(t *testing.T) {
		h := newHarness(t, &fakeAudio{}, fastBehavior(), "")
		h.start(t)

		closed := actuator.Closed
		if _, err := h.svc.UpdatePositions(context.Background(), &closed, nil); err != nil {
			t.Fatal(err)
		}
		h.svc.SetBlinkEnabled(true)
		time.Sleep(150 * time.Millisecond)
		if h.obs.blinkCount() != 0 || h.svc.State().Eyes != actuator.Closed {
			t.Error("blinked with eyes closed")
		}
	})
}

func TestService_UpdatePositions(t *testing.T) {
	h := newHarness(t, &fakeAudio{}, fastBehavior(), "")
	h.start(t)

	closed, open := actuator.Closed, actuator.Open
	st, err := h.svc.UpdatePositions(context.Background(), &closed, &open)
	if err != nil {
		t.Fatal(err)
	}
	if st.Eyes != actuator.Closed || st.Mouth != actuator.Open || st.MouthPosition != 100 {
		t.Errorf("state = %+v", st)
	}

	st, err = h.svc.UpdatePositions(context.Background(), nil, nil)
	if err != nil || st.Eyes != actuator.Closed {
		t.Errorf("no-op update = %+v, %v", st, err)
	}

	unknown := actuator.Unknown
	_, err = h.svc.UpdatePositions(context.Background(), &unknown, nil)
	if !errors.Is(err, actuator.ErrInvalidPosition) {
		t.Errorf("err = %v, want ErrInvalidPosition", err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	t.Run("commands before start", func(t *testing.T) {
		h := newHarness(t, &fakeAudio{}, fastBehavior(), "")
		if err := h.svc.Speak(context.Background(), "hi"); !errors.Is(err, ErrNotRunning) {
			t.Errorf("Speak = %v", err)
		}
		if _, err := h.svc.UpdatePositions(context.Background(), nil, nil); !errors.Is(err, ErrNotRunning) {
			t.Errorf("UpdatePositions = %v", err)
		}
		if err := h.svc.Stop(context.Background()); err != nil {
			t.Errorf("Stop before Start = %v", err)
		}
	})

	t.Run("double start", func(t *testing.T) {
		h := newHarness(t, &fakeAudio{}, fastBehavior(), "")
		h.start(t)
		if err := h.svc.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("second Start = %v", err)
		}
	})

	t.Run("hardware failure", func(t *testing.T) {
		h := newHarness(t, &fakeAudio{}, fastBehavior(), "")
		h.sim.FailSetup = func(pin int) error {
			if pin == mouthPins.PWM {
				return errors.New("pin busy")
			}
			return nil
		}
		err := h.svc.Start(context.Background())
		var be *Error
		if !errors.As(err, &be) || be.Op != "start" {
			t.Fatalf("Start = %v", err)
		}
		if h.svc.Phase() != Stopped {
			t.Errorf("phase = %v", h.svc.Phase())
		}
		if err := h.svc.Stop(context.Background()); err != nil {
			t.Errorf("Stop after failed Start = %v", err)
		}
	})
}

func TestService_SetVolume(t *testing.T) {
	fa := &fakeAudio{}
	h := newHarness(t, fa, fastBehavior(), "")
	h.start(t)

	if err := h.svc.SetVolume(context.Background(), 55); err != nil {
		t.Fatal(err)
	}
	if h.svc.State().Volume != 55 {
		t.Errorf("volume = %d", h.svc.State().Volume)
	}
	if err := h.svc.SetVolume(context.Background(), 150); !errors.Is(err, audio.ErrVolumeRange) {
		t.Errorf("SetVolume(150) = %v", err)
	}
}

func TestService_Phrases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.json")
	if err := os.WriteFile(path, []byte(`{"greet":"Hello, I'm Teddy"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, &fakeAudio{}, fastBehavior(), path)
	h.start(t)

	p := h.svc.Phrases()
	if p["greet"] != "Hello, I'm Teddy" {
		t.Fatalf("phrases = %v", p)
	}
	p["greet"] = "mutated"
	if h.svc.Phrases()["greet"] != "Hello, I'm Teddy" {
		t.Error("Phrases must return a copy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan error, 1)
	go func() { watchDone <- h.svc.WatchPhrases(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"greet":"Hi","bye":"Bye now"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reload", func() bool { return h.svc.Phrases()["bye"] == "Bye now" })

	cancel()
	if err := <-watchDone; !errors.Is(err, context.Canceled) {
		t.Errorf("WatchPhrases = %v", err)
	}

	t.Run("missing file is not an error", func(t *testing.T) {
		h := newHarness(t, &fakeAudio{}, fastBehavior(), filepath.Join(t.TempDir(), "absent.json"))
		if err := h.svc.ReloadPhrases(); err != nil {
			t.Error(err)
		}
		if len(h.svc.Phrases()) != 0 {
			t.Error("expected no phrases")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		_ = os.WriteFile(bad, []byte("{"), 0o644)
		h := newHarness(t, &fakeAudio{}, fastBehavior(), bad)
		if err := h.svc.ReloadPhrases(); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestPhaseString(t *testing.T) {
	want := map[Phase]string{
		Uninitialized: "uninitialized",
		Starting:      "starting",
		Running:       "running",
		Stopping:      "stopping",
		Stopped:       "stopped",
	}
	for p, s := range want {
		if p.String() != s {
			t.Errorf("%d.String() = %s, want %s", p, p.String(), s)
		}
	}
}

func TestDefaultBehavior(t *testing.T) {
	b := DefaultBehavior()
	if b.IdleInterval <= b.TalkInterval {
		t.Errorf("idle interval %v should be coarser than talk interval %v", b.IdleInterval, b.TalkInterval)
	}
	if b.TalkInterval != 40*time.Millisecond || b.TalkMoveDuration != 150*time.Millisecond {
		t.Errorf("talk cadence = %v/%v, want 40ms/150ms", b.TalkInterval, b.TalkMoveDuration)
	}
	if b.BlinkMin >= b.BlinkMax {
		t.Errorf("blink window %v..%v is empty", b.BlinkMin, b.BlinkMax)
	}
}

func TestService_StopInterruptsPerformance(t *testing.T) {
	fa := &fakeAudio{release: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, fa, fastBehavior(), "")
	h.start(t)

	done := make(chan error, 1)
	go func() { done <- h.svc.Speak(context.Background(), "a very long story") }()
	<-fa.started

	if err := h.svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if h.svc.IsBusy() {
		t.Error("Stop returned while the performance was still running")
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("interrupted Speak = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return")
	}
	st := h.svc.State()
	if st.Eyes != actuator.Closed || st.Mouth != actuator.Closed {
		t.Errorf("after stop: %+v", st)
	}
	assertBraked(t, h.sim, mouthPins)
}
