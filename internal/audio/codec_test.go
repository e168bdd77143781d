package audio

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
)

func TestEncodeFrame_RoundTrip(t *testing.T) {
	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 2 * math.Pi / 64))
	}

	blob := EncodeFrame(samples, 16000)
	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Expected MIME 'audio/pcm;rate=16000', got '%s'", blob.MIMEType)
	}
	if len(blob.Data) != len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*2, len(blob.Data))
	}

	buf, err := DecodeToPlayableBuffer(blob.Data, 16000, 1)
	if err != nil {
		t.Fatalf("DecodeToPlayableBuffer() failed: %v", err)
	}
	decoded := buf.Channels[0]
	const tolerance = 2.0 / 32767
	for i := range samples {
		if diff := math.Abs(float64(decoded[i] - samples[i])); diff > tolerance {
			t.Fatalf("Sample %d: expected %f, got %f (diff %g)", i, samples[i], decoded[i], diff)
		}
	}
}

func TestEncodeFrame_Clamps(t *testing.T) {
	blob := EncodeFrame([]float32{1.5, -2, 1, -1, 0}, 16000)

	buf, err := DecodeToPlayableBuffer(blob.Data, 16000, 1)
	if err != nil {
		t.Fatalf("DecodeToPlayableBuffer() failed: %v", err)
	}
	got := buf.Channels[0]
	if got[0] != 32767.0/32768.0 {
		t.Errorf("Expected positive clamp, got %f", got[0])
	}
	if got[1] != -1 {
		t.Errorf("Expected negative clamp to -1, got %f", got[1])
	}
	if got[4] != 0 {
		t.Errorf("Expected silence, got %f", got[4])
	}
}

func TestEncodeFrame_Empty(t *testing.T) {
	blob := EncodeFrame(nil, 16000)
	if len(blob.Data) != 0 {
		t.Errorf("Expected empty blob, got %d bytes", len(blob.Data))
	}
	if blob.MIMEType == "" {
		t.Error("Expected MIME type on empty blob")
	}
}

func TestDecodeBase64Audio(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x01, 0x00, 0xff, 0x7f})

	data, err := DecodeBase64Audio(payload)
	if err != nil {
		t.Fatalf("DecodeBase64Audio() failed: %v", err)
	}
	if len(data) != 4 || data[3] != 0x7f {
		t.Errorf("Unexpected decoded bytes: %v", data)
	}
}

func TestDecodeBase64Audio_Malformed(t *testing.T) {
	_, err := DecodeBase64Audio("not*base64!")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestDecodeToPlayableBuffer_RejectsPartialFrames(t *testing.T) {
	tests := []struct {
		name     string
		length   int
		channels int
	}{
		{"odd mono", 3, 1},
		{"single byte", 1, 1},
		{"stereo half frame", 6, 2},
		{"stereo odd", 9, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := DecodeToPlayableBuffer(make([]byte, tt.length), 24000, tt.channels)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Expected ErrDecode, got %v", err)
			}
			if buf != nil {
				t.Error("Expected no partial buffer")
			}
		})
	}
}

func TestDecodeToPlayableBuffer_InvalidFormat(t *testing.T) {
	if _, err := DecodeToPlayableBuffer(make([]byte, 4), 0, 1); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for zero sample rate, got %v", err)
	}
	if _, err := DecodeToPlayableBuffer(make([]byte, 4), 24000, 0); !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for zero channels, got %v", err)
	}
}

func TestDecodeToPlayableBuffer_Stereo(t *testing.T) {
	// frame 0: L=16384 R=-16384, frame 1: L=0 R=32767
	data := []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x00, 0xff, 0x7f}

	buf, err := DecodeToPlayableBuffer(data, 24000, 2)
	if err != nil {
		t.Fatalf("DecodeToPlayableBuffer() failed: %v", err)
	}
	if buf.Frames() != 2 {
		t.Fatalf("Expected 2 frames, got %d", buf.Frames())
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[1][0] != -0.5 {
		t.Errorf("Unexpected first frame: L=%f R=%f", buf.Channels[0][0], buf.Channels[1][0])
	}
	mono := buf.Mono()
	if mono[0] != 0 {
		t.Errorf("Expected mixed-down first frame 0, got %f", mono[0])
	}
}

func TestBuffer_Duration(t *testing.T) {
	buf, err := DecodeToPlayableBuffer(make([]byte, 48000), 24000, 1)
	if err != nil {
		t.Fatalf("DecodeToPlayableBuffer() failed: %v", err)
	}
	if buf.Duration() != 1.0 {
		t.Errorf("Expected duration 1.0s, got %f", buf.Duration())
	}
}
