package wav

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	f, err := Decode(Encode(samples, 16000, 1))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 || f.BitsPerSample != 16 {
		t.Errorf("unexpected format %+v", f)
	}
	if f.Frames() != 16000 {
		t.Errorf("Frames = %d, want 16000", f.Frames())
	}
	if f.Duration() != time.Second {
		t.Errorf("Duration = %v, want 1s", f.Duration())
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode([]byte("not a wav file")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("got %v, want ErrNotWAV", err)
	}

	// Header only, no chunks.
	hdr := Encode(nil, 8000, 1)[:12]
	if _, err := Decode(hdr); !errors.Is(err, ErrNoFormatChunk) {
		t.Errorf("got %v, want ErrNoFormatChunk", err)
	}
}

func TestDecode_OversizedDataChunk(t *testing.T) {
	buf := Encode([]int16{1, 2, 3, 4}, 8000, 1)
	// Streaming encoders write 0xFFFFFFFF as the data size.
	buf[40], buf[41], buf[42], buf[43] = 0xff, 0xff, 0xff, 0xff

	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Frames() != 4 {
		t.Errorf("Frames = %d, want 4", f.Frames())
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteFile(path, []int16{100, -100, 200, -200}, 16000, 2); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Channels != 2 || f.Frames() != 2 {
		t.Errorf("got channels=%d frames=%d, want 2/2", f.Channels, f.Frames())
	}
}

func TestEncodePCM(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0xff}
	f, err := Decode(EncodePCM(pcm, 16000, 1))
	if err != nil {
		t.Fatal(err)
	}
	if string(f.Data) != string(pcm) {
		t.Errorf("Data = %v, want %v", f.Data, pcm)
	}
}
