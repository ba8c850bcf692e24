package audio

import (
	"errors"
	"fmt"
)

// Sentinel errors for audio operations.
var (
	// ErrFileNotFound is returned when an audio file does not exist.
	ErrFileNotFound = errors.New("audio: file not found")

	// ErrUnsupportedFormat is returned for WAV files with a sample width
	// other than 8 or 16 bits.
	ErrUnsupportedFormat = errors.New("audio: unsupported sample width")

	// ErrVolumeRange is returned when a volume is outside 0..100.
	ErrVolumeRange = errors.New("audio: volume must be between 0 and 100")

	// ErrBackend is returned when the playback or mixer command fails.
	ErrBackend = errors.New("audio: backend failed")

	// ErrSynthesis is returned when speech synthesis fails.
	ErrSynthesis = errors.New("audio: speech synthesis failed")

	// ErrInvalidName is returned for sound names that would escape the
	// sounds directory.
	ErrInvalidName = errors.New("audio: invalid sound name")
)

// Error wraps an audio failure with the operation and file involved.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("audio %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("audio %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Op: op, Path: path, Err: err}
}
