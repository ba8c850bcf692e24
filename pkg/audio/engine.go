package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-ruxpin/pkg/tts"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxAmplitude = 3000
	DefaultThreshold    = 500
	speechNameRunes     = 30
)

// Config configures an Engine.
type Config struct {
	SoundsDir          string
	TTSDir             string
	AmplitudeThreshold int
	MaxAmplitude       int
	UpdateRate         int // envelope values per second
	Volume             int // initial volume reported by Volume

	Player Player
	Mixer  Mixer
	Synth  tts.Provider
	Logger *slog.Logger

	// OnAmplitude, when set, is called with every amplitude written to the
	// tracker, including the final reset to zero.
	OnAmplitude func(amplitude int)
}

// Clip is a playable audio file.
type Clip struct {
	Path     string
	Text     string
	Duration time.Duration
}

// Engine plays clips while tracking their loudness.
type Engine struct {
	soundsDir    string
	ttsDir       string
	threshold    int
	maxAmplitude int
	updateRate   int

	player      Player
	mixer       Mixer
	synth       tts.Provider
	logger      *slog.Logger
	onAmplitude func(int)

	tracker Tracker

	volMu  sync.RWMutex
	volume int
}

// New creates an Engine. A nil Player or Mixer selects the exec backends.
func New(cfg Config) (*Engine, error) {
	if cfg.Volume < 0 || cfg.Volume > 100 {
		return nil, wrap("new", "", ErrVolumeRange)
	}
	if cfg.Player == nil {
		cfg.Player = NewExecPlayer("")
	}
	if cfg.Mixer == nil {
		cfg.Mixer = NewExecMixer("", "")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AmplitudeThreshold == 0 {
		cfg.AmplitudeThreshold = DefaultThreshold
	}
	if cfg.MaxAmplitude <= 0 {
		cfg.MaxAmplitude = DefaultMaxAmplitude
	}
	if cfg.UpdateRate <= 0 {
		cfg.UpdateRate = DefaultUpdateRate
	}
	if cfg.SoundsDir == "" {
		cfg.SoundsDir = "sounds"
	}
	if cfg.TTSDir == "" {
		cfg.TTSDir = filepath.Join(cfg.SoundsDir, "tts")
	}

	return &Engine{
		soundsDir:    cfg.SoundsDir,
		ttsDir:       cfg.TTSDir,
		threshold:    cfg.AmplitudeThreshold,
		maxAmplitude: cfg.MaxAmplitude,
		updateRate:   cfg.UpdateRate,
		player:       cfg.Player,
		mixer:        cfg.Mixer,
		synth:        cfg.Synth,
		logger:       cfg.Logger.With("component", "audio"),
		onAmplitude:  cfg.OnAmplitude,
		volume:       cfg.Volume,
	}, nil
}

// SoundsDir returns the directory named sounds are read from.
func (e *Engine) SoundsDir() string {
	return e.soundsDir
}

// Volume returns the last volume set.
func (e *Engine) Volume() int {
	e.volMu.RLock()
	defer e.volMu.RUnlock()
	return e.volume
}

// SetVolume changes the output volume.
func (e *Engine) SetVolume(ctx context.Context, level int) error {
	if level < 0 || level > 100 {
		return wrap("set_volume", "", fmt.Errorf("%w: got %d", ErrVolumeRange, level))
	}
	if err := e.mixer.SetVolume(ctx, level); err != nil {
		return wrap("set_volume", "", err)
	}

	e.volMu.Lock()
	e.volume = level
	e.volMu.Unlock()

	e.logger.Info("volume set", "level", level)
	return nil
}

// CurrentAmplitude returns the loudness of the clip playing now, or 0.
func (e *Engine) CurrentAmplitude() int {
	return e.tracker.Get()
}

// MouthPosition maps the current amplitude to a mouth opening percent.
func (e *Engine) MouthPosition() int {
	return MouthPositionFromAmplitude(e.tracker.Get(), e.maxAmplitude)
}

// IsAboveThreshold reports whether the current amplitude exceeds the
// configured threshold.
func (e *Engine) IsAboveThreshold() bool {
	return e.tracker.Get() > e.threshold
}

// Speak synthesizes text and plays it.
func (e *Engine) Speak(ctx context.Context, text string) error {
	clip, err := e.GenerateSpeech(ctx, text)
	if err != nil {
		return err
	}
	return e.Play(ctx, clip)
}

// GenerateSpeech synthesizes text into <tts dir>/<SpeechFileName(text)>.
func (e *Engine) GenerateSpeech(ctx context.Context, text string) (*Clip, error) {
	if e.synth == nil {
		return nil, wrap("speech", "", fmt.Errorf("%w: no engine configured", ErrSynthesis))
	}

	result, err := e.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, wrap("speech", "", fmt.Errorf("%w: %w", ErrSynthesis, err))
	}

	if err := os.MkdirAll(e.ttsDir, 0o755); err != nil {
		return nil, wrap("speech", e.ttsDir, err)
	}
	path := filepath.Join(e.ttsDir, SpeechFileName(text))
	if err := os.WriteFile(path, result.Audio, 0o644); err != nil {
		return nil, wrap("speech", path, err)
	}

	e.logger.Debug("speech generated",
		"path", path,
		"chars", result.CharCount,
		"duration", result.Duration,
		"latency_ms", result.LatencyMs,
	)
	return &Clip{Path: path, Text: text, Duration: result.Duration}, nil
}

// PlaySound plays <sounds dir>/<name>.wav. The extension is always added,
// so "hello.wav" names hello.wav.wav. Names may not contain path separators
// or "..".
func (e *Engine) PlaySound(ctx context.Context, name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return wrap("play_sound", name, ErrInvalidName)
	}
	return e.PlayFile(ctx, filepath.Join(e.soundsDir, name+".wav"))
}

// Play plays clip.
func (e *Engine) Play(ctx context.Context, clip *Clip) error {
	return e.PlayFile(ctx, clip.Path)
}

// PlayFile plays the WAV at path. The loudness envelope is read first;
// then playback and the envelope walker run together and both finish
// before PlayFile returns. The amplitude is always zero afterwards.
func (e *Engine) PlayFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return wrap("play", path, ErrFileNotFound)
		}
		return wrap("play", path, err)
	}

	type envResult struct {
		env Envelope
		err error
	}
	ch := make(chan envResult, 1)
	go func() {
		env, err := ReadEnvelope(path, e.updateRate)
		ch <- envResult{env, err}
	}()

	var res envResult
	select {
	case <-ctx.Done():
		return wrap("play", path, ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		return wrap("play", path, res.err)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.player.Play(gctx, path)
	})
	g.Go(func() error {
		return e.walk(gctx, res.env)
	})
	if err := g.Wait(); err != nil {
		return wrap("play", path, err)
	}

	e.logger.Info("played audio",
		"path", path,
		"duration", res.env.Duration,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// walk writes each envelope value to the tracker on schedule.
func (e *Engine) walk(ctx context.Context, env Envelope) error {
	defer e.setAmplitude(0)

	timer := time.NewTimer(env.Interval)
	defer timer.Stop()

	start := time.Now()
	for i, v := range env.Values {
		e.setAmplitude(v)

		wait := time.Until(start.Add(time.Duration(i+1) * env.Interval))
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (e *Engine) setAmplitude(v int) {
	e.tracker.Set(v)
	if e.onAmplitude != nil {
		e.onAmplitude(v)
	}
}

// SpeechFileName derives a file name from the first 30 characters of text,
// replacing anything that is not a letter or digit with '_'.
func SpeechFileName(text string) string {
	var b strings.Builder
	n := 0
	for _, r := range text {
		if n == speechNameRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String() + ".wav"
}
