package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Player plays an audio file to completion.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Mixer sets the output volume, 0..100.
type Mixer interface {
	SetVolume(ctx context.Context, level int) error
}

// command runs an external program and returns its stderr on failure.
type command func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s not installed", ErrBackend, name)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%w: %s: %v", ErrBackend, name, err)
		}
		return fmt.Errorf("%w: %s: %v: %s", ErrBackend, name, err, msg)
	}
	return nil
}

// ExecPlayer plays files with aplay on Linux and afplay on macOS.
type ExecPlayer struct {
	// Device is passed to aplay -D when set (e.g. "plughw:1,0").
	Device string

	goos string
	run  command
}

// NewExecPlayer creates a player for the current platform.
func NewExecPlayer(device string) *ExecPlayer {
	return &ExecPlayer{Device: device, goos: runtime.GOOS, run: runCommand}
}

// Play blocks until the file has finished playing or ctx is done.
func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	if p.goos == "darwin" {
		return p.run(ctx, "afplay", path)
	}
	args := []string{"-q"}
	if p.Device != "" {
		args = append(args, "-D", p.Device)
	}
	return p.run(ctx, "aplay", append(args, path)...)
}

// ExecMixer sets the volume with amixer on Linux and osascript on macOS.
type ExecMixer struct {
	// Card is the ALSA card index for amixer -c; empty uses the default.
	Card string
	// Control is the ALSA simple mixer control, usually "PCM".
	Control string

	goos string
	run  command
}

// NewExecMixer creates a mixer for the current platform.
func NewExecMixer(card, control string) *ExecMixer {
	if control == "" {
		control = "PCM"
	}
	return &ExecMixer{Card: card, Control: control, goos: runtime.GOOS, run: runCommand}
}

// SetVolume applies level. macOS uses a 0..7 output volume scale.
func (m *ExecMixer) SetVolume(ctx context.Context, level int) error {
	if m.goos == "darwin" {
		scaled := level * 7 / 100
		return m.run(ctx, "osascript", "-e", "set volume output volume "+strconv.Itoa(scaled))
	}
	var args []string
	if m.Card != "" {
		args = append(args, "-c", m.Card)
	}
	args = append(args, "-q", "sset", m.Control, strconv.Itoa(level)+"%")
	return m.run(ctx, "amixer", args...)
}

var (
	_ Player = (*ExecPlayer)(nil)
	_ Mixer  = (*ExecMixer)(nil)
)
