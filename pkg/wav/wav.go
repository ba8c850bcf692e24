// Package wav reads and writes PCM RIFF/WAVE files.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Errors returned by Decode.
var (
	ErrNotWAV        = errors.New("wav: not a RIFF/WAVE file")
	ErrNoFormatChunk = errors.New("wav: missing fmt chunk")
	ErrNoDataChunk   = errors.New("wav: missing data chunk")
	ErrNotPCM        = errors.New("wav: only PCM encoding is supported")
)

const formatPCM = 1

// File is a decoded WAV file.
type File struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// Data holds the raw interleaved sample bytes.
	Data []byte
}

// SampleWidth returns bytes per sample.
func (f *File) SampleWidth() int {
	return f.BitsPerSample / 8
}

// Frames returns the number of sample frames.
func (f *File) Frames() int {
	frame := f.Channels * f.SampleWidth()
	if frame == 0 {
		return 0
	}
	return len(f.Data) / frame
}

// Duration returns the playback duration.
func (f *File) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(f.Frames()) / float64(f.SampleRate) * float64(time.Second))
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses a WAV buffer. Unknown chunks are skipped. A data chunk whose
// declared size overruns the buffer (as written by streaming encoders) is
// truncated to the bytes present.
func Decode(buf []byte) (*File, error) {
	if len(buf) < 12 || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		f      File
		gotFmt bool
		pos    = 12
	)

	for pos+8 <= len(buf) {
		id := string(buf[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if size < 0 || end > len(buf) {
			end = len(buf)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrNotWAV)
			}
			chunk := buf[body:end]
			if binary.LittleEndian.Uint16(chunk[0:2]) != formatPCM {
				return nil, ErrNotPCM
			}
			f.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(chunk[14:16]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, ErrNoFormatChunk
			}
			f.Data = buf[body:end]
			return &f, nil
		}

		// Chunks are word aligned.
		pos = end + size%2
	}

	if !gotFmt {
		return nil, ErrNoFormatChunk
	}
	return nil, ErrNoDataChunk
}

// Write encodes 16-bit PCM samples as a WAV stream.
func Write(w io.Writer, samples []int16, sampleRate, channels int) error {
	dataSize := len(samples) * 2
	fileSize := 36 + dataSize

	header := []any{
		[]byte("RIFF"), uint32(fileSize), []byte("WAVE"),
		[]byte("fmt "), uint32(16), uint16(formatPCM), uint16(channels),
		uint32(sampleRate), uint32(sampleRate * channels * 2), uint16(channels * 2), uint16(16),
		[]byte("data"), uint32(dataSize),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, samples)
}

// Encode returns a WAV buffer for 16-bit PCM samples.
func Encode(samples []int16, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	_ = Write(&buf, samples, sampleRate, channels)
	return buf.Bytes()
}

// EncodePCM wraps little-endian 16-bit PCM bytes in a WAV header.
func EncodePCM(pcm []byte, sampleRate, channels int) []byte {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return Encode(samples, sampleRate, channels)
}

// WriteFile writes 16-bit PCM samples to path.
func WriteFile(path string, samples []int16, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, samples, sampleRate, channels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
