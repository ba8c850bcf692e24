package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/wav"
)

const (
	providerEspeak = "espeak"
	providerSay    = "say"
	providerPiper  = "piper"
)

// runner executes a command, feeding stdin when non-nil.
type runner func(ctx context.Context, name string, args []string, stdin []byte) error

func execRunner(ctx context.Context, name string, args []string, stdin []byte) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEngineNotFound, name)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}

// local is the shared base for engines that write a WAV file to disk.
type local struct {
	name   string
	config *Config
	logger *slog.Logger
}

func newLocal(name, binary string, opts []Option) local {
	cfg := DefaultConfig()
	cfg.Binary = binary
	cfg.Apply(opts...)
	return local{
		name:   name,
		config: cfg,
		logger: cfg.Logger.With("component", "tts."+name),
	}
}

// synthesizeTo creates a temp dir, lets render write a WAV into it, and
// returns the decoded result.
func (l *local) synthesizeTo(ctx context.Context, text string, render func(ctx context.Context, dir, out string) error) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(l.name, ErrEmptyText)
	}
	start := time.Now()

	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp("", "ruxpin-tts-*")
	if err != nil {
		return nil, WrapError(l.name, err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "speech.wav")
	if err := render(ctx, dir, out); err != nil {
		return nil, WrapError(l.name, err)
	}

	audio, err := os.ReadFile(out)
	if err != nil {
		return nil, WrapError(l.name, fmt.Errorf("read output: %w", err))
	}
	f, err := wav.Decode(audio)
	if err != nil {
		return nil, WrapError(l.name, fmt.Errorf("decode output: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	l.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   EncodingWAV,
			SampleRate: f.SampleRate,
			Channels:   f.Channels,
			BitDepth:   f.BitsPerSample,
		},
		Duration:  f.Duration(),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (l *local) health() error {
	if _, err := exec.LookPath(l.config.Binary); err != nil {
		return WrapError(l.name, fmt.Errorf("%w: %s", ErrEngineNotFound, l.config.Binary))
	}
	return nil
}

// Espeak synthesizes with espeak / espeak-ng.
type Espeak struct {
	local
}

// NewEspeak creates an espeak provider. Defaults: voice en+m3, 125 wpm, pitch 50.
func NewEspeak(opts ...Option) *Espeak {
	e := &Espeak{local: newLocal(providerEspeak, "espeak", opts)}
	if e.config.Voice == "" {
		e.config.Voice = "en+m3"
	}
	return e
}

// Synthesize runs espeak and returns its WAV output.
func (e *Espeak) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	return e.synthesizeTo(ctx, text, func(ctx context.Context, _, out string) error {
		args := []string{
			"-v", e.config.Voice,
			"-s", strconv.Itoa(e.config.Speed),
			"-p", strconv.Itoa(e.config.Pitch),
			"-w", out,
			text,
		}
		return e.config.run(ctx, e.config.Binary, args, nil)
	})
}

// Health checks that the espeak binary is installed.
func (e *Espeak) Health(ctx context.Context) error { return e.health() }

// Close releases resources.
func (e *Espeak) Close() error { return nil }

// Say synthesizes with the macOS say command and converts the AIFF output
// to 16-bit PCM WAV with afconvert.
type Say struct {
	local
}

// NewSay creates a say provider. The default voice is Fred.
func NewSay(opts ...Option) *Say {
	s := &Say{local: newLocal(providerSay, "say", opts)}
	if s.config.Voice == "" || strings.Contains(s.config.Voice, "+") {
		s.config.Voice = "Fred"
	}
	return s
}

// Synthesize runs say then afconvert.
func (s *Say) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	return s.synthesizeTo(ctx, text, func(ctx context.Context, dir, out string) error {
		aiff := filepath.Join(dir, "speech.aiff")
		if err := s.config.run(ctx, s.config.Binary, []string{"-v", s.config.Voice, "-o", aiff, text}, nil); err != nil {
			return err
		}
		convert := []string{
			"-f", "WAVE",
			"-d", "LEI16",
			"-r", strconv.Itoa(s.config.SampleRate),
			aiff, out,
		}
		if err := s.config.run(ctx, "afconvert", convert, nil); err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		return nil
	})
}

// Health checks that say is installed.
func (s *Say) Health(ctx context.Context) error { return s.health() }

// Close releases resources.
func (s *Say) Close() error { return nil }

// Piper synthesizes with the piper neural TTS CLI. Voice is the .onnx model path.
type Piper struct {
	local
}

// piperSearchPaths are tried in order when no binary is configured.
var piperSearchPaths = []string{
	"models/piper/piper",
	"/usr/local/bin/piper",
	"/opt/homebrew/bin/piper",
}

// NewPiper creates a piper provider.
func NewPiper(opts ...Option) (*Piper, error) {
	p := &Piper{local: newLocal(providerPiper, "", opts)}
	if p.config.Voice == "" {
		return nil, WrapError(providerPiper, ErrNoVoiceID)
	}
	if p.config.Binary == "" {
		p.config.Binary = "piper"
		for _, path := range piperSearchPaths {
			if _, err := os.Stat(path); err == nil {
				p.config.Binary = path
				break
			}
		}
	}
	return p, nil
}

// Synthesize pipes text to piper.
func (p *Piper) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	return p.synthesizeTo(ctx, text, func(ctx context.Context, _, out string) error {
		if _, err := os.Stat(p.config.Voice); err != nil {
			return fmt.Errorf("model not found: %s", p.config.Voice)
		}
		args := []string{"--model", p.config.Voice, "--output_file", out}
		return p.config.run(ctx, p.config.Binary, args, []byte(text))
	})
}

// Health checks the binary and model are present.
func (p *Piper) Health(ctx context.Context) error {
	if err := p.health(); err != nil {
		return err
	}
	if _, err := os.Stat(p.config.Voice); err != nil {
		return WrapError(providerPiper, fmt.Errorf("model not found: %s", p.config.Voice))
	}
	return nil
}

// Close releases resources.
func (p *Piper) Close() error { return nil }

// Verify local providers implement Provider at compile time.
var (
	_ Provider = (*Espeak)(nil)
	_ Provider = (*Say)(nil)
	_ Provider = (*Piper)(nil)
)
