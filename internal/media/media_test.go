package media

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
)

func constBuffer(rate, n int, value float32) *audio.Buffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return &audio.Buffer{SampleRate: rate, Channels: [][]float32{samples}}
}

func TestMixer_GaplessBackToBack(t *testing.T) {
	m := NewMixer(1000)
	first := constBuffer(1000, 30, 0.25)
	second := constBuffer(1000, 20, 0.5)

	if _, err := m.Schedule(first, 0, nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := m.Schedule(second, first.Duration(), nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	out := make([]float32, 60)
	m.Render(out)
	for i := 0; i < 30; i++ {
		if out[i] != 0.25 {
			t.Fatalf("Expected first buffer at sample %d, got %v", i, out[i])
		}
	}
	for i := 30; i < 50; i++ {
		if out[i] != 0.5 {
			t.Fatalf("Expected second buffer at sample %d, got %v", i, out[i])
		}
	}
	for i := 50; i < 60; i++ {
		if out[i] != 0 {
			t.Fatalf("Expected silence at sample %d, got %v", i, out[i])
		}
	}
	if got := m.CurrentTime(); got != 0.06 {
		t.Errorf("Expected clock 0.06, got %v", got)
	}
	if m.Pending() != 0 {
		t.Errorf("Expected no pending voices, got %d", m.Pending())
	}
}

func TestMixer_SpansPeriods(t *testing.T) {
	m := NewMixer(100)
	if _, err := m.Schedule(constBuffer(100, 15, 1), 0.05, nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	out := make([]float32, 10)
	m.Render(out)
	if out[4] != 0 || out[5] != 1 || out[9] != 1 {
		t.Errorf("Unexpected first period %v", out)
	}
	m.Render(out)
	if out[9] != 1 {
		t.Errorf("Unexpected second period %v", out)
	}
	m.Render(out)
	if out[0] != 0 {
		t.Errorf("Expected voice finished, got %v", out)
	}
}

func TestMixer_PastStartPlaysNow(t *testing.T) {
	m := NewMixer(100)
	m.Render(make([]float32, 50))

	if _, err := m.Schedule(constBuffer(100, 5, 1), 0.1, nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	out := make([]float32, 5)
	m.Render(out)
	for i, s := range out {
		if s != 1 {
			t.Errorf("Expected sample %d to play immediately, got %v", i, s)
		}
	}
}

func TestMixer_OnEnded(t *testing.T) {
	m := NewMixer(100)
	ended := make(chan string, 2)
	if _, err := m.Schedule(constBuffer(100, 5, 1), 0, func() { ended <- "played" }); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	stopped, err := m.Schedule(constBuffer(100, 5, 1), 0.05, func() { ended <- "stopped" })
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	stopped.Stop()
	stopped.Stop()

	out := make([]float32, 20)
	m.Render(out)

	select {
	case got := <-ended:
		if got != "played" {
			t.Errorf("Expected played voice to end, got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for onEnded")
	}
	select {
	case got := <-ended:
		t.Errorf("Expected no callback for a stopped voice, got %s", got)
	case <-time.After(20 * time.Millisecond):
	}
	if out[7] != 0 {
		t.Errorf("Expected stopped voice to be silent, got %v", out[7])
	}
}

func TestMixer_RejectsRateMismatch(t *testing.T) {
	m := NewMixer(24000)
	if _, err := m.Schedule(constBuffer(16000, 10, 0), 0, nil); err == nil {
		t.Error("Expected error for mismatched sample rate")
	}
	if _, err := m.Schedule(nil, 0, nil); err == nil {
		t.Error("Expected error for nil buffer")
	}
}

func TestMixer_StopAll(t *testing.T) {
	m := NewMixer(100)
	called := make(chan struct{}, 1)
	_, _ = m.Schedule(constBuffer(100, 5, 1), 0, func() { called <- struct{}{} })

	m.StopAll()
	out := make([]float32, 10)
	m.Render(out)

	if out[0] != 0 {
		t.Errorf("Expected silence, got %v", out[0])
	}
	select {
	case <-called:
		t.Error("Expected no callback after StopAll")
	case <-time.After(20 * time.Millisecond):
	}
}

func pcm(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return out
}

type frameSink struct {
	mu     sync.Mutex
	frames [][]float32
}

func (s *frameSink) onFrame(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, samples)
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestCapture_FramesFixedSize(t *testing.T) {
	in := newInput(16000, zerolog.Nop())
	c := &Capture{rate: 16000}
	sink := &frameSink{}

	node, err := in.Process(c, 4, sink.onFrame)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	c.deliver(pcm(16384, 16384, 16384))
	if sink.count() != 0 {
		t.Errorf("Expected no frame before 4 samples, got %d", sink.count())
	}
	c.deliver(pcm(-16384, 0, 0, 0, 0, 0))
	if sink.count() != 2 {
		t.Fatalf("Expected 2 frames, got %d", sink.count())
	}
	first := sink.frames[0]
	if len(first) != 4 || first[0] != 0.5 || first[3] != -0.5 {
		t.Errorf("Unexpected first frame %v", first)
	}

	if err := node.Disconnect(); err != nil {
		t.Errorf("Disconnect failed: %v", err)
	}
	c.deliver(pcm(1, 2, 3, 4))
	if sink.count() != 2 {
		t.Errorf("Expected no frames after disconnect, got %d", sink.count())
	}
}

func TestCapture_DropsOddPeriod(t *testing.T) {
	in := newInput(16000, zerolog.Nop())
	c := &Capture{rate: 16000}
	sink := &frameSink{}
	if _, err := in.Process(c, 1, sink.onFrame); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	c.deliver([]byte{1, 2, 3})
	if sink.count() != 0 {
		t.Errorf("Expected odd-length period dropped, got %d frames", sink.count())
	}
}

func TestInput_CloseDisconnectsNodes(t *testing.T) {
	in := newInput(16000, zerolog.Nop())
	c := &Capture{rate: 16000}
	sink := &frameSink{}
	if _, err := in.Process(c, 1, sink.onFrame); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if err := in.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	c.deliver(pcm(100))
	if sink.count() != 0 {
		t.Errorf("Expected no frames after close, got %d", sink.count())
	}
	if _, err := in.Process(c, 1, sink.onFrame); err == nil {
		t.Error("Expected Process to fail on a closed context")
	}
}

func TestCapture_StopIsIdempotent(t *testing.T) {
	c := &Capture{rate: 16000}
	if err := c.Stop(); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Expected nil error on second stop, got %v", err)
	}

	sink := &frameSink{}
	c.attach(newFramer(c, 1, sink.onFrame))
	c.deliver(pcm(1))
	if sink.count() != 0 {
		t.Error("Expected a stopped capture to deliver nothing")
	}
}

type stillCamera struct{}

func (stillCamera) Frame(ctx context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func TestCapture_Frames(t *testing.T) {
	withCamera := &Capture{frames: stillCamera{}}
	if withCamera.Frames() == nil {
		t.Error("Expected camera feed")
	}
	without := &Capture{}
	if without.Frames() != nil {
		t.Error("Expected no camera feed")
	}
}
