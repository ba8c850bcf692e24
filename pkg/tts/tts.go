// Package tts synthesizes speech into WAV audio for the bear to play.
//
// Local engines (espeak, macOS say, piper) shell out to the synthesizer;
// hosted engines (OpenAI, ElevenLabs) call their HTTP APIs. Every Provider
// returns a complete RIFF/WAVE buffer so the audio engine can extract an
// amplitude envelope before playback.
//
// Example usage:
//
//	provider, _ := tts.New("espeak", tts.WithVoice("en+m3"), tts.WithSpeed(125))
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello, I'm Teddy")
//	// result.Audio contains a WAV file
package tts

import (
	"context"
	"time"
)

// Provider turns text into a WAV buffer.
type Provider interface {
	Synthesize(ctx context.Context, text string) (*AudioResult, error)
	// Health reports whether the engine is installed or reachable.
	Health(ctx context.Context) error
	Close() error
}

// AudioResult is one synthesized utterance.
type AudioResult struct {
	Audio     []byte // RIFF/WAVE
	Format    AudioFormat
	Duration  time.Duration
	CharCount int
	LatencyMs int64
}

// AudioFormat describes the PCM inside Audio.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding names a container or raw PCM layout.
type Encoding string

const (
	EncodingWAV Encoding = "wav"

	// Raw 16-bit PCM as requested from hosted engines, wrapped locally.
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM22 Encoding = "pcm_22050"
	EncodingPCM24 Encoding = "pcm_24000"
	EncodingPCM44 Encoding = "pcm_44100"
)

// SampleRateFromEncoding returns the rate of a raw PCM encoding, 24 kHz if
// unknown.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM22:
		return 22050
	case EncodingPCM44:
		return 44100
	}
	return 24000
}

func durationOf(pcmBytes int, f AudioFormat) time.Duration {
	frame := f.Channels * f.BitDepth / 8
	if frame <= 0 || f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(pcmBytes/frame) * time.Second / time.Duration(f.SampleRate)
}
