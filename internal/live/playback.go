package live

import (
	"math"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
)

// playAudio decodes one model audio chunk and schedules it right after the last
// scheduled buffer. An undecodable chunk is dropped without changing status.
func (s *Session) playAudio(r *run, payload string) {
	data, err := audio.DecodeBase64Audio(payload)
	var buf *audio.Buffer
	if err == nil {
		buf, err = audio.DecodeToPlayableBuffer(data, s.cfg.OutputSampleRate, 1)
	}
	if err != nil {
		r.metrics.RecordDecodeError()
		r.logger.Warn().Err(err).Int("payload_len", len(payload)).Msg("Dropping undecodable audio chunk")
		return
	}

	s.mu.Lock()
	if !s.current(r) || r.output == nil {
		s.mu.Unlock()
		return
	}
	start := math.Max(r.nextStart, r.output.CurrentTime())
	id := r.nextID
	r.nextID++
	src, err := r.output.Schedule(buf, start, func() { s.playbackEnded(r, id) })
	if err != nil {
		s.mu.Unlock()
		r.logger.Warn().Err(err).Msg("Failed to schedule audio chunk")
		return
	}
	r.pending[id] = src
	r.nextStart = start + buf.Duration()
	s.setStatusLocked(StatusSpeaking)
	s.mu.Unlock()
	s.events.flush()

	r.metrics.RecordAudioBytes("outbound", int64(len(data)))
	r.logger.Debug().
		Float64("start", start).
		Float64("duration", buf.Duration()).
		Msg("Scheduled audio chunk")
}

func (s *Session) playbackEnded(r *run, id uint64) {
	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	if _, ok := r.pending[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(r.pending, id)
	if len(r.pending) == 0 && s.status == StatusSpeaking {
		s.setStatusLocked(StatusListening)
	}
	s.mu.Unlock()
	s.events.flush()
}

// interrupt discards all scheduled playback after the user cut in
func (s *Session) interrupt(r *run) {
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return
	}
	sources := make([]PlaybackSource, 0, len(r.pending))
	for _, src := range r.pending {
		sources = append(sources, src)
	}
	r.pending = make(map[uint64]PlaybackSource)
	r.nextStart = 0
	r.modelText.Reset()
	s.events.jarvisTranscript("")
	s.setStatusLocked(StatusListening)
	s.mu.Unlock()

	for _, src := range sources {
		if err := safely("playback source", func() error { src.Stop(); return nil }); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to stop interrupted playback")
		}
	}
	s.events.flush()

	r.metrics.RecordInterruption()
	r.logger.Debug().Int("stopped_sources", len(sources)).Msg("Playback interrupted")
}
