package media

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/live"
)

// Input is the microphone-side audio context. It fixes the capture sample rate and
// owns the processing nodes created on it.
type Input struct {
	rate   int
	logger zerolog.Logger

	mu     sync.Mutex
	nodes  []*framer
	closed bool
}

func newInput(rate int, logger zerolog.Logger) *Input {
	return &Input{rate: rate, logger: logger}
}

// SampleRate returns the capture rate in Hz
func (in *Input) SampleRate() int {
	return in.rate
}

// Process attaches a node to capture that delivers frames of frameSize samples
func (in *Input) Process(capture live.Capture, frameSize int, onFrame func(samples []float32)) (live.ProcessingNode, error) {
	c, ok := capture.(*Capture)
	if !ok {
		return nil, fmt.Errorf("unsupported capture type %T", capture)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, fmt.Errorf("input context is closed")
	}
	node := newFramer(c, frameSize, onFrame)
	c.attach(node)
	in.nodes = append(in.nodes, node)
	return node, nil
}

// Close disconnects every node created on the context
func (in *Input) Close() error {
	in.mu.Lock()
	nodes := in.nodes
	in.nodes = nil
	in.closed = true
	in.mu.Unlock()

	for _, n := range nodes {
		_ = n.Disconnect()
	}
	return nil
}

// Capture is an acquired microphone stream plus the optional camera feed
type Capture struct {
	device *malgo.Device
	frames live.FrameSource
	rate   int

	mu      sync.Mutex
	node    *framer
	stopped bool
}

// Frames returns the camera feed, or nil when vision is disabled
func (c *Capture) Frames() live.FrameSource {
	return c.frames
}

// Stop halts and releases the microphone. It is safe to call more than once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.node = nil
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device == nil {
		return nil
	}
	var err error
	if device.IsStarted() {
		if stopErr := device.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop capture device: %w", stopErr)
		}
	}
	device.Uninit()
	return err
}

// deliver feeds one device period of 16-bit PCM into the attached node
func (c *Capture) deliver(pcm []byte) {
	c.mu.Lock()
	node := c.node
	c.mu.Unlock()
	if node == nil {
		return
	}

	buf, err := audio.DecodeToPlayableBuffer(pcm, c.rate, 1)
	if err != nil {
		return
	}
	node.push(buf.Channels[0])
}

func (c *Capture) attach(node *framer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.node = node
	}
}

func (c *Capture) detach(node *framer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.node == node {
		c.node = nil
	}
}

// framer cuts arbitrary device periods into fixed-size frames
type framer struct {
	capture *Capture
	ring    *audio.SampleRing
	size    int
	onFrame func([]float32)

	mu           sync.Mutex
	disconnected bool
}

func newFramer(c *Capture, size int, onFrame func([]float32)) *framer {
	return &framer{
		capture: c,
		ring:    audio.NewSampleRing(size * 4),
		size:    size,
		onFrame: onFrame,
	}
}

func (f *framer) push(samples []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disconnected {
		return
	}
	f.ring.Write(samples)
	for {
		frame := make([]float32, f.size)
		if !f.ring.ReadFrame(frame) {
			return
		}
		f.onFrame(frame)
	}
}

// Disconnect stops frame delivery. It is safe to call more than once.
func (f *framer) Disconnect() error {
	f.mu.Lock()
	f.disconnected = true
	f.ring.Clear()
	f.mu.Unlock()
	if f.capture != nil {
		f.capture.detach(f)
	}
	return nil
}
