package tts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-ruxpin/pkg/wav"
)

// MockSampleRate is the sample rate of audio produced by NewMock.
const MockSampleRate = 16000

// mockCharDuration is the audio length generated per input character.
const mockCharDuration = 20 * time.Millisecond

// Mock is an offline Provider. It fabricates speech-like WAV audio and logs
// every call, which makes it the engine of choice for tests and -sim runs.
type Mock struct {
	// Err, when set, fails Synthesize and Health.
	Err error
	// Delay holds back each Synthesize, honouring cancellation.
	Delay time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one logged invocation.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock returns a mock producing 16 kHz mono audio, 20ms per character.
// Vowels are loud and everything else is quiet, so the amplitude envelope
// rises and falls like speech.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock that fails every call with err.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

// WithLatency sets m's synthesis delay and returns m.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	m.Delay = delay
	return m
}

// MockSpeech returns PCM samples for text at MockSampleRate.
func MockSpeech(text string) []int16 {
	perChar := int(mockCharDuration.Seconds() * MockSampleRate)
	out := make([]int16, 0, len(text)*perChar)
	for _, r := range text {
		amp := int16(200)
		if strings.ContainsRune("aeiouAEIOU", r) {
			amp = 2800
		}
		for i := range perChar {
			if i&1 == 1 {
				out = append(out, -amp)
			} else {
				out = append(out, amp)
			}
		}
	}
	return out
}

func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.log("Synthesize", text)

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapError("mock", ErrEmptyText)
	}

	samples := MockSpeech(text)
	format := AudioFormat{Encoding: EncodingWAV, SampleRate: MockSampleRate, Channels: 1, BitDepth: 16}
	return &AudioResult{
		Audio:     wav.Encode(samples, MockSampleRate, 1),
		Format:    format,
		Duration:  durationOf(2*len(samples), format),
		CharCount: len(text),
		LatencyMs: 1,
	}, nil
}

func (m *Mock) Health(context.Context) error {
	m.log("Health", "")
	return m.Err
}

func (m *Mock) Close() error {
	m.log("Close", "")
	return nil
}

// Calls returns a copy of the call log.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount counts logged calls to method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears the call log.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

func (m *Mock) log(method, text string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
