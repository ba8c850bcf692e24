package audio

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/wav"
)

// DefaultUpdateRate is the number of envelope values per second of audio.
const DefaultUpdateRate = 50

// Envelope is the precomputed loudness of a clip.
type Envelope struct {
	Values   []int
	Interval time.Duration
	Duration time.Duration
}

// ComputeEnvelope splits the clip's samples into roughly rate chunks per
// second and returns the mean loudness of each chunk. 8-bit samples are
// used raw (unsigned); 16-bit samples use their absolute value.
func ComputeEnvelope(f *wav.File, rate int) (Envelope, error) {
	if rate <= 0 {
		rate = DefaultUpdateRate
	}

	var samples []int
	switch f.SampleWidth() {
	case 1:
		samples = make([]int, len(f.Data))
		for i, b := range f.Data {
			samples[i] = int(b)
		}
	case 2:
		samples = make([]int, len(f.Data)/2)
		for i := range samples {
			v := int(int16(binary.LittleEndian.Uint16(f.Data[i*2:])))
			if v < 0 {
				v = -v
			}
			samples[i] = v
		}
	default:
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrUnsupportedFormat, f.SampleWidth())
	}

	duration := f.Duration()
	env := Envelope{Duration: duration}
	if len(samples) == 0 {
		return env, nil
	}

	updates := max(1, int(duration.Seconds()*float64(rate)))
	perUpdate := max(1, len(samples)/updates)

	env.Values = make([]int, 0, len(samples)/perUpdate+1)
	for start := 0; start < len(samples); start += perUpdate {
		end := min(start+perUpdate, len(samples))
		sum := 0
		for _, s := range samples[start:end] {
			sum += s
		}
		env.Values = append(env.Values, sum/(end-start))
	}

	chunks := len(samples) / perUpdate
	if chunks > 0 {
		env.Interval = duration / time.Duration(chunks)
	}
	return env, nil
}

// ReadEnvelope reads a WAV file and computes its envelope.
func ReadEnvelope(path string, rate int) (Envelope, error) {
	f, err := wav.ReadFile(path)
	if err != nil {
		return Envelope{}, err
	}
	return ComputeEnvelope(f, rate)
}
