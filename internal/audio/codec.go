package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDecode reports a model audio payload that cannot be turned into samples
var ErrDecode = errors.New("audio decode error")

// Blob is a media payload in the wire format expected by the model
type Blob struct {
	MIMEType string
	Data     []byte
}

// PCMMIMEType returns the MIME identifier for 16-bit little-endian PCM at sampleRate
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodeFrame converts float samples in [-1, 1] into 16-bit little-endian PCM.
// Out-of-range samples are clamped. An empty frame yields an empty blob.
func EncodeFrame(samples []float32, sampleRate int) Blob {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(floatToPCM16(s)))
	}
	return Blob{MIMEType: PCMMIMEType(sampleRate), Data: data}
}

func floatToPCM16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	case s < 0:
		return int16(s * 32768)
	default:
		return int16(s * 32767)
	}
}

// DecodeBase64Audio decodes a standard base64 audio payload
func DecodeBase64Audio(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}
	return data, nil
}

// Buffer is a decoded, playable block of float PCM, one slice per channel
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of sample frames in the buffer
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length in seconds
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono returns the buffer mixed down to a single channel
func (b *Buffer) Mono() []float32 {
	switch len(b.Channels) {
	case 0:
		return nil
	case 1:
		return b.Channels[0]
	}
	out := make([]float32, b.Frames())
	scale := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}

// DecodeToPlayableBuffer reconstructs a playable buffer from interleaved 16-bit
// little-endian PCM. It fails with ErrDecode, returning no buffer, when the byte
// length is not a whole number of sample frames.
func DecodeToPlayableBuffer(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrDecode, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count must be positive, got %d", ErrDecode, channels)
	}
	frameSize := 2 * channels
	if len(data)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of the %d-byte frame size", ErrDecode, len(data), frameSize)
	}

	frames := len(data) / frameSize
	buf := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Channels[c][i] = float32(sample) / 32768.0
		}
	}
	return buf, nil
}
