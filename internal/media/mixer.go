package media

import (
	"fmt"
	"math"
	"sync"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/live"
)

// Mixer schedules buffers on a sample clock and renders them into device periods.
// The clock only advances when Render is called, so it follows the hardware.
type Mixer struct {
	mu     sync.Mutex
	rate   int
	clock  int64
	voices []*voice
}

type voice struct {
	mixer   *Mixer
	start   int64
	samples []float32
	onEnded func()
}

// NewMixer creates a mixer for mono output at rate Hz
func NewMixer(rate int) *Mixer {
	return &Mixer{rate: rate}
}

// CurrentTime returns the playback clock in seconds
func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.clock) / float64(m.rate)
}

// Schedule queues buf to start at the given clock time. A start time in the past
// plays immediately. onEnded runs on its own goroutine after the last sample is
// rendered and never runs for a stopped voice.
func (m *Mixer) Schedule(buf *audio.Buffer, at float64, onEnded func()) (live.PlaybackSource, error) {
	if buf == nil {
		return nil, fmt.Errorf("no buffer to schedule")
	}
	if buf.SampleRate != m.rate {
		return nil, fmt.Errorf("buffer rate %d Hz does not match output rate %d Hz", buf.SampleRate, m.rate)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	start := int64(math.Round(at * float64(m.rate)))
	if start < m.clock {
		start = m.clock
	}
	v := &voice{mixer: m, start: start, samples: buf.Mono(), onEnded: onEnded}
	m.voices = append(m.voices, v)
	return v, nil
}

// Render mixes every voice overlapping the next len(out) samples into out and
// advances the clock
func (m *Mixer) Render(out []float32) {
	clear(out)

	m.mu.Lock()
	from := m.clock
	to := from + int64(len(out))
	var ended []func()
	kept := m.voices[:0]
	for _, v := range m.voices {
		end := v.start + int64(len(v.samples))
		for t := max(v.start, from); t < min(end, to); t++ {
			out[t-from] += v.samples[t-v.start]
		}
		if end <= to {
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(m.voices[len(kept):])
	m.voices = kept
	m.clock = to
	m.mu.Unlock()

	for _, fn := range ended {
		go fn()
	}
}

// Pending returns the number of voices not yet finished
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// StopAll drops every voice without completion callbacks
func (m *Mixer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.voices)
	m.voices = nil
}

// Stop removes the voice. It is safe to call more than once.
func (v *voice) Stop() {
	m := v.mixer
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.voices {
		if other == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}
