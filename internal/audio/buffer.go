package audio

import (
	"sync"
)

// SampleRing is a thread-safe ring buffer of float PCM samples. The capture path
// writes device periods of arbitrary length into it and reads back fixed-size frames.
type SampleRing struct {
	buffer []float32
	size   int
	read   int
	count  int
	mu     sync.Mutex
}

// NewSampleRing creates a ring holding up to size samples
func NewSampleRing(size int) *SampleRing {
	return &SampleRing{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write appends samples, dropping the oldest samples when the ring is full.
// It returns the number of samples that were overwritten.
func (r *SampleRing) Write(samples []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	if len(samples) > r.size {
		dropped = len(samples) - r.size
		samples = samples[dropped:]
	}
	if overflow := r.count + len(samples) - r.size; overflow > 0 {
		r.read = (r.read + overflow) % r.size
		r.count -= overflow
		dropped += overflow
	}

	write := (r.read + r.count) % r.size
	n := copy(r.buffer[write:], samples)
	copy(r.buffer, samples[n:])
	r.count += len(samples)
	return dropped
}

// Read copies up to len(dst) samples out of the ring and returns how many were read
func (r *SampleRing) Read(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(dst), r.count)
	end := r.read + n
	if end <= r.size {
		copy(dst, r.buffer[r.read:end])
	} else {
		first := copy(dst, r.buffer[r.read:])
		copy(dst[first:n], r.buffer[:n-first])
	}
	r.read = (r.read + n) % r.size
	r.count -= n
	return n
}

// ReadFrame fills dst completely if enough samples are buffered.
// It returns false and reads nothing otherwise.
func (r *SampleRing) ReadFrame(dst []float32) bool {
	if r.Available() < len(dst) {
		return false
	}
	return r.Read(dst) == len(dst)
}

// Available returns the number of samples buffered
func (r *SampleRing) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear drops all buffered samples
func (r *SampleRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = 0
	r.count = 0
}
