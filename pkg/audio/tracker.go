package audio

import (
	"math"
	"sync"
)

// MinMouthAmplitude is the amplitude below which the mouth stays shut.
const MinMouthAmplitude = 100

// Tracker holds the loudness of the clip currently playing. It is written
// by the envelope walker and read by the talk loop.
type Tracker struct {
	mu        sync.Mutex
	amplitude int
}

// Set stores the current amplitude.
func (t *Tracker) Set(amplitude int) {
	t.mu.Lock()
	t.amplitude = amplitude
	t.mu.Unlock()
}

// Get returns the current amplitude.
func (t *Tracker) Get() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.amplitude
}

// Reset sets the amplitude back to zero.
func (t *Tracker) Reset() {
	t.Set(0)
}

// MouthPositionFromAmplitude maps an amplitude to a mouth opening in
// percent. A square-root curve keeps quiet passages small and saturates at
// maxAmplitude. Amplitudes under MinMouthAmplitude give 0.
func MouthPositionFromAmplitude(amplitude, maxAmplitude int) int {
	if amplitude < MinMouthAmplitude {
		return 0
	}
	if maxAmplitude <= 0 {
		return 100
	}
	normalized := math.Min(float64(amplitude)/float64(maxAmplitude), 1)
	position := int(math.Round(100 * math.Sqrt(normalized)))
	return min(max(position, 0), 100)
}
