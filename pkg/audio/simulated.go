package audio

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/wav"
)

// Simulated is a Player and Mixer that makes no sound. Play waits for the
// clip's duration (scaled by Speed) so timing behaves like real playback.
type Simulated struct {
	// Speed divides the wait; 0 or 1 plays in real time.
	Speed float64
	// Err, when set, is returned by Play after the wait.
	Err error
	// VolumeErr, when set, is returned by SetVolume.
	VolumeErr error

	mu      sync.Mutex
	played  []string
	volumes []int
}

// NewSimulated creates a real-time simulated backend.
func NewSimulated() *Simulated {
	return &Simulated{Speed: 1}
}

// Play records path and sleeps for the clip's duration.
func (s *Simulated) Play(ctx context.Context, path string) error {
	s.mu.Lock()
	s.played = append(s.played, path)
	speed, playErr := s.Speed, s.Err
	s.mu.Unlock()

	var d time.Duration
	if f, err := wav.ReadFile(path); err == nil {
		d = f.Duration()
	}
	if speed > 0 {
		d = time.Duration(float64(d) / speed)
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return playErr
}

// SetVolume records level.
func (s *Simulated) SetVolume(ctx context.Context, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.VolumeErr != nil {
		return s.VolumeErr
	}
	s.volumes = append(s.volumes, level)
	return nil
}

// Played returns the paths passed to Play.
func (s *Simulated) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

// Volumes returns the levels passed to SetVolume.
func (s *Simulated) Volumes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.volumes...)
}

var (
	_ Player = (*Simulated)(nil)
	_ Mixer  = (*Simulated)(nil)
)
