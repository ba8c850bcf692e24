package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/tts"
	"github.com/teslashibe/go-ruxpin/pkg/wav"
)

func TestMouthPositionFromAmplitude(t *testing.T) {
	tests := []struct {
		amp  int
		want int
	}{
		{0, 0},
		{99, 0},
		{100, 18},
		{750, 50},
		{3000, 100},
		{9000, 100},
	}
	for _, tt := range tests {
		if got := MouthPositionFromAmplitude(tt.amp, 3000); got != tt.want {
			t.Errorf("MouthPositionFromAmplitude(%d) = %d, want %d", tt.amp, got, tt.want)
		}
	}

	t.Run("monotonic", func(t *testing.T) {
		prev := 0
		for amp := 0; amp <= 5000; amp++ {
			got := MouthPositionFromAmplitude(amp, 3000)
			if got < prev {
				t.Fatalf("position dropped from %d to %d at amplitude %d", prev, got, amp)
			}
			prev = got
		}
	})
}

func TestTracker(t *testing.T) {
	var tr Tracker
	tr.Set(1234)
	if tr.Get() != 1234 {
		t.Errorf("Get() = %d", tr.Get())
	}
	tr.Reset()
	if tr.Get() != 0 {
		t.Errorf("Get() after Reset = %d", tr.Get())
	}
}

func TestComputeEnvelope(t *testing.T) {
	t.Run("16-bit uses absolute values", func(t *testing.T) {
		samples := make([]int16, 1000)
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				samples[i] = 1000
			} else {
				samples[i] = -1000
			}
		}
		f, err := wav.Decode(wav.Encode(samples, 1000, 1))
		if err != nil {
			t.Fatal(err)
		}
		env, err := ComputeEnvelope(f, 50)
		if err != nil {
			t.Fatal(err)
		}
		if len(env.Values) != 50 {
			t.Fatalf("got %d values, want 50", len(env.Values))
		}
		if env.Values[0] != 1000 || env.Values[24] != 1000 || env.Values[25] != 0 || env.Values[49] != 0 {
			t.Errorf("unexpected envelope %v", env.Values)
		}
		if env.Interval != 20*time.Millisecond || env.Duration != time.Second {
			t.Errorf("interval/duration = %v/%v", env.Interval, env.Duration)
		}
	})

	t.Run("8-bit uses raw unsigned values", func(t *testing.T) {
		data := make([]byte, 100)
		for i := range data {
			data[i] = 200
		}
		env, err := ComputeEnvelope(&wav.File{SampleRate: 100, Channels: 1, BitsPerSample: 8, Data: data}, 50)
		if err != nil {
			t.Fatal(err)
		}
		if len(env.Values) != 50 || env.Values[0] != 200 {
			t.Errorf("unexpected envelope %v", env.Values)
		}
	})

	t.Run("very short clip yields one chunk", func(t *testing.T) {
		f, _ := wav.Decode(wav.Encode([]int16{300, -300, 300, -300}, 16000, 1))
		env, err := ComputeEnvelope(f, 50)
		if err != nil {
			t.Fatal(err)
		}
		if len(env.Values) != 1 || env.Values[0] != 300 {
			t.Errorf("unexpected envelope %v", env.Values)
		}
	})

	t.Run("unsupported width", func(t *testing.T) {
		_, err := ComputeEnvelope(&wav.File{SampleRate: 8000, Channels: 1, BitsPerSample: 24, Data: make([]byte, 30)}, 50)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})
}

func TestSpeechFileName(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hello, I'm Teddy!", "Hello__I_m_Teddy_.wav"},
		{"abcdefghijklmnopqrstuvwxyz0123456789", "abcdefghijklmnopqrstuvwxyz0123.wav"},
		{"../etc/passwd", "___etc_passwd.wav"},
	}
	for _, tt := range tests {
		if got := SpeechFileName(tt.text); got != tt.want {
			t.Errorf("SpeechFileName(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

// writeClip writes a 16 kHz clip of the given length at a constant loudness.
func writeClip(t *testing.T, dir, name string, d time.Duration, amp int16) string {
	t.Helper()
	n := int(d.Seconds() * 16000)
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	path := filepath.Join(dir, name)
	if err := wav.WriteFile(path, samples, 16000, 1); err != nil {
		t.Fatal(err)
	}
	return path
}

type amplitudeLog struct {
	mu     sync.Mutex
	values []int
}

func (l *amplitudeLog) record(v int) {
	l.mu.Lock()
	l.values = append(l.values, v)
	l.mu.Unlock()
}

func (l *amplitudeLog) snapshot() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.values...)
}

func newTestEngine(t *testing.T, sim *Simulated, synth tts.Provider) (*Engine, *amplitudeLog) {
	t.Helper()
	dir := t.TempDir()
	amps := &amplitudeLog{}
	e, err := New(Config{
		SoundsDir:   dir,
		TTSDir:      filepath.Join(dir, "tts"),
		Volume:      90,
		Player:      sim,
		Mixer:       sim,
		Synth:       synth,
		OnAmplitude: amps.record,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e, amps
}

func TestEngine_PlayFile(t *testing.T) {
	sim := NewSimulated()
	e, amps := newTestEngine(t, sim, nil)
	path := writeClip(t, e.SoundsDir(), "growl.wav", 200*time.Millisecond, 2000)

	start := time.Now()
	if err := e.PlayFile(context.Background(), path); err != nil {
		t.Fatalf("PlayFile: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("returned after %v, before the clip finished", elapsed)
	}

	values := amps.snapshot()
	if len(values) < 2 || values[0] != 2000 {
		t.Fatalf("unexpected amplitude sequence %v", values)
	}
	if values[len(values)-1] != 0 {
		t.Error("last amplitude written should be the reset to 0")
	}
	if e.CurrentAmplitude() != 0 || e.IsAboveThreshold() || e.MouthPosition() != 0 {
		t.Error("amplitude should be zero after playback")
	}
	if got := sim.Played(); len(got) != 1 || got[0] != path {
		t.Errorf("played %v", got)
	}
}

func TestEngine_AmplitudeVisibleDuringPlayback(t *testing.T) {
	sim := NewSimulated()
	e, _ := newTestEngine(t, sim, nil)
	path := writeClip(t, e.SoundsDir(), "loud.wav", 300*time.Millisecond, 3000)

	done := make(chan error, 1)
	go func() { done <- e.PlayFile(context.Background(), path) }()

	sawOpen := false
	deadline := time.After(2 * time.Second)
	for !sawOpen {
		select {
		case err := <-done:
			t.Fatalf("playback finished before amplitude was observed: %v", err)
		case <-deadline:
			t.Fatal("timed out")
		case <-time.After(5 * time.Millisecond):
			sawOpen = e.IsAboveThreshold() && e.MouthPosition() == 100
		}
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestEngine_PlayErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		e, _ := newTestEngine(t, NewSimulated(), nil)
		err := e.PlayFile(context.Background(), filepath.Join(e.SoundsDir(), "nope.wav"))
		var ae *Error
		if !errors.Is(err, ErrFileNotFound) || !errors.As(err, &ae) || ae.Op != "play" {
			t.Errorf("expected play ErrFileNotFound, got %v", err)
		}
	})

	t.Run("not a wav", func(t *testing.T) {
		e, _ := newTestEngine(t, NewSimulated(), nil)
		path := filepath.Join(e.SoundsDir(), "junk.wav")
		_ = os.WriteFile(path, []byte("definitely not RIFF"), 0o644)
		if err := e.PlayFile(context.Background(), path); !errors.Is(err, wav.ErrNotWAV) {
			t.Errorf("expected ErrNotWAV, got %v", err)
		}
	})

	t.Run("backend failure resets amplitude", func(t *testing.T) {
		sim := NewSimulated()
		sim.Err = errors.New("aplay: device busy")
		e, amps := newTestEngine(t, sim, nil)
		path := writeClip(t, e.SoundsDir(), "a.wav", 100*time.Millisecond, 2000)

		err := e.PlayFile(context.Background(), path)
		if err == nil || !strings.Contains(err.Error(), "device busy") {
			t.Fatalf("expected backend error, got %v", err)
		}
		values := amps.snapshot()
		if e.CurrentAmplitude() != 0 || values[len(values)-1] != 0 {
			t.Error("amplitude not reset after failure")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		e, _ := newTestEngine(t, NewSimulated(), nil)
		path := writeClip(t, e.SoundsDir(), "long.wav", time.Second, 2000)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := e.PlayFile(ctx, path); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
		if e.CurrentAmplitude() != 0 {
			t.Error("amplitude not reset after cancel")
		}
	})
}

func TestEngine_PlaySound(t *testing.T) {
	sim := &Simulated{Speed: 20}
	e, _ := newTestEngine(t, sim, nil)
	writeClip(t, e.SoundsDir(), "hello.wav", 100*time.Millisecond, 1000)

	if err := e.PlaySound(context.Background(), "hello"); err != nil {
		t.Fatalf("PlaySound: %v", err)
	}
	if got := sim.Played(); len(got) != 1 || got[0] != filepath.Join(e.SoundsDir(), "hello.wav") {
		t.Errorf("played %v", got)
	}
	if err := e.PlaySound(context.Background(), "hello.wav"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("PlaySound(%q) = %v, want ErrFileNotFound", "hello.wav", err)
	}

	for _, name := range []string{"", "../secret", "sub/dir", `..\x`, "a..b"} {
		if err := e.PlaySound(context.Background(), name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("PlaySound(%q) = %v, want ErrInvalidName", name, err)
		}
	}
	if len(sim.Played()) != 1 {
		t.Error("invalid names must not reach the player")
	}
}

func TestEngine_SetVolume(t *testing.T) {
	sim := NewSimulated()
	e, _ := newTestEngine(t, sim, nil)

	if e.Volume() != 90 {
		t.Errorf("initial volume = %d", e.Volume())
	}
	if err := e.SetVolume(context.Background(), 40); err != nil {
		t.Fatal(err)
	}
	if e.Volume() != 40 || !reflect.DeepEqual(sim.Volumes(), []int{40}) {
		t.Errorf("volume = %d, mixer saw %v", e.Volume(), sim.Volumes())
	}

	for _, level := range []int{-1, 101} {
		if err := e.SetVolume(context.Background(), level); !errors.Is(err, ErrVolumeRange) {
			t.Errorf("SetVolume(%d) = %v, want ErrVolumeRange", level, err)
		}
	}

	sim.VolumeErr = errors.New("amixer: no such control")
	if err := e.SetVolume(context.Background(), 10); err == nil {
		t.Error("expected mixer error")
	}
	if e.Volume() != 40 {
		t.Errorf("failed SetVolume changed volume to %d", e.Volume())
	}
}

func TestEngine_Speech(t *testing.T) {
	t.Run("generate writes sanitized file", func(t *testing.T) {
		mock := tts.NewMock()
		e, _ := newTestEngine(t, &Simulated{Speed: 20}, mock)

		clip, err := e.GenerateSpeech(context.Background(), "Hi there!")
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(clip.Path) != "Hi_there_.wav" {
			t.Errorf("path = %s", clip.Path)
		}
		f, err := wav.ReadFile(clip.Path)
		if err != nil {
			t.Fatalf("generated file unreadable: %v", err)
		}
		if f.SampleRate != tts.MockSampleRate {
			t.Errorf("sample rate = %d", f.SampleRate)
		}
	})

	t.Run("speak plays generated file", func(t *testing.T) {
		sim := &Simulated{Speed: 20}
		e, amps := newTestEngine(t, sim, tts.NewMock())

		if err := e.Speak(context.Background(), "hello"); err != nil {
			t.Fatal(err)
		}
		if len(sim.Played()) != 1 {
			t.Errorf("played %v", sim.Played())
		}
		if len(amps.snapshot()) == 0 {
			t.Error("no amplitudes tracked")
		}
	})

	t.Run("synthesis failure", func(t *testing.T) {
		e, _ := newTestEngine(t, NewSimulated(), tts.WithError(errors.New("espeak missing")))
		_, err := e.GenerateSpeech(context.Background(), "hello")
		if !errors.Is(err, ErrSynthesis) || !strings.Contains(err.Error(), "espeak missing") {
			t.Errorf("expected ErrSynthesis, got %v", err)
		}
	})

	t.Run("no engine", func(t *testing.T) {
		e, _ := newTestEngine(t, NewSimulated(), nil)
		if err := e.Speak(context.Background(), "hello"); !errors.Is(err, ErrSynthesis) {
			t.Errorf("expected ErrSynthesis, got %v", err)
		}
	})
}

func TestExecBackends(t *testing.T) {
	var calls [][]string
	fake := func(ctx context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}

	tests := []struct {
		name string
		run  func() error
		want []string
	}{
		{
			"aplay with device",
			func() error {
				return (&ExecPlayer{Device: "plughw:1,0", goos: "linux", run: fake}).Play(context.Background(), "a.wav")
			},
			[]string{"aplay", "-q", "-D", "plughw:1,0", "a.wav"},
		},
		{
			"afplay",
			func() error { return (&ExecPlayer{goos: "darwin", run: fake}).Play(context.Background(), "a.wav") },
			[]string{"afplay", "a.wav"},
		},
		{
			"amixer with card",
			func() error {
				return (&ExecMixer{Card: "1", Control: "PCM", goos: "linux", run: fake}).SetVolume(context.Background(), 75)
			},
			[]string{"amixer", "-c", "1", "-q", "sset", "PCM", "75%"},
		},
		{
			"osascript scales to 0-7",
			func() error { return (&ExecMixer{goos: "darwin", run: fake}).SetVolume(context.Background(), 100) },
			[]string{"osascript", "-e", "set volume output volume 7"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = nil
			if err := tt.run(); err != nil {
				t.Fatal(err)
			}
			if len(calls) != 1 || !reflect.DeepEqual(calls[0], tt.want) {
				t.Errorf("got %v, want %v", calls, tt.want)
			}
		})
	}

	t.Run("missing binary", func(t *testing.T) {
		err := runCommand(context.Background(), "definitely-not-aplay")
		if !errors.Is(err, ErrBackend) {
			t.Errorf("expected ErrBackend, got %v", err)
		}
	})
}
