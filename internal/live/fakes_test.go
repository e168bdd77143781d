package live

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/browser"
)

type fakeCredentials struct {
	mu            sync.Mutex
	has           bool
	grantOnPrompt bool
	promptErr     error
	prompts       int
	// gate, when set, holds prompts until it closes or ctx ends
	gate chan struct{}
}

func (c *fakeCredentials) HasCredential() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.has
}

func (c *fakeCredentials) PromptForCredential(ctx context.Context) error {
	c.mu.Lock()
	gate := c.gate
	c.prompts++
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.promptErr != nil {
		return c.promptErr
	}
	if c.grantOnPrompt {
		c.has = true
	}
	return nil
}

func (c *fakeCredentials) promptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts
}

type sentToolResult struct {
	id     string
	name   string
	result browser.Result
}

type fakeConn struct {
	mu      sync.Mutex
	audio   []audio.Blob
	images  []audio.Blob
	results []sentToolResult
	closed  int
}

func (c *fakeConn) SendAudio(blob audio.Blob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, blob)
	return nil
}

func (c *fakeConn) SendImage(blob audio.Blob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images = append(c.images, blob)
	return nil
}

func (c *fakeConn) SendToolResult(id, name string, result browser.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, sentToolResult{id, name, result})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) counts() (audioFrames, images, results, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.audio), len(c.images), len(c.results), c.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	calls   int
	handler ConnHandler
	cfg     ConnectConfig
	conn    *fakeConn
	err     error
}

func (d *fakeDialer) Dial(ctx context.Context, cfg ConnectConfig, handler ConnHandler) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.handler = handler
	d.cfg = cfg
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) connHandler() ConnHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler
}

type fakeNode struct {
	mu           sync.Mutex
	disconnected int
}

func (n *fakeNode) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected++
	return nil
}

type fakeInput struct {
	mu       sync.Mutex
	onFrame  func([]float32)
	closed   int
	closeErr error
	node     *fakeNode
}

func (in *fakeInput) Process(capture Capture, frameSize int, onFrame func([]float32)) (ProcessingNode, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onFrame = onFrame
	return in.node, nil
}

func (in *fakeInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed++
	return in.closeErr
}

func (in *fakeInput) frameHandler() func([]float32) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.onFrame
}

type scheduledBuffer struct {
	at       float64
	duration float64
	onEnded  func()
	source   *fakeSource
}

type fakeSource struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeOutput struct {
	mu        sync.Mutex
	now       float64
	scheduled []scheduledBuffer
	closed    int
}

func (o *fakeOutput) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Schedule(buf *audio.Buffer, at float64, onEnded func()) (PlaybackSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &fakeSource{}
	o.scheduled = append(o.scheduled, scheduledBuffer{at: at, duration: buf.Duration(), onEnded: onEnded, source: src})
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) setNow(now float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

func (o *fakeOutput) buffers() []scheduledBuffer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduledBuffer(nil), o.scheduled...)
}

type fakeFrames struct {
	img image.Image
}

func (f fakeFrames) Frame(ctx context.Context) (image.Image, error) {
	return f.img, nil
}

type fakeCapture struct {
	mu          sync.Mutex
	stopped     int
	frames      FrameSource
	panicOnStop bool
}

func (c *fakeCapture) Frames() FrameSource {
	return c.frames
}

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	c.stopped++
	c.mu.Unlock()
	if c.panicOnStop {
		panic("track already ended")
	}
	return nil
}

type fakeDevices struct {
	mu         sync.Mutex
	input      *fakeInput
	output     *fakeOutput
	capture    *fakeCapture
	inputs     int
	outputs    int
	acquires   int
	acquireErr error
}

func (d *fakeDevices) OpenInput(sampleRate int) (InputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs++
	return d.input, nil
}

func (d *fakeDevices) OpenOutput(sampleRate int) (OutputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs++
	return d.output, nil
}

func (d *fakeDevices) Acquire(ctx context.Context, input InputContext) (Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquires++
	if d.acquireErr != nil {
		return nil, d.acquireErr
	}
	return d.capture, nil
}

func (d *fakeDevices) counts() (inputs, outputs, acquires int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs, d.outputs, d.acquires
}

type toolInvocation struct {
	name string
	args map[string]any
}

type fakeTools struct {
	mu     sync.Mutex
	calls  []toolInvocation
	result browser.Result
}

func (f *fakeTools) Execute(ctx context.Context, name string, args map[string]any) browser.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolInvocation{name, args})
	return f.result
}

func (f *fakeTools) invocations() []toolInvocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolInvocation(nil), f.calls...)
}

type fakeVideo struct {
	url string
	err error
	// hold makes Generate wait for ctx and report on cancelled
	hold      bool
	started   chan struct{}
	cancelled chan error
}

func (f *fakeVideo) Generate(ctx context.Context, prompt string) (string, error) {
	if f.hold {
		close(f.started)
		<-ctx.Done()
		f.cancelled <- ctx.Err()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.url + "?prompt=" + prompt, nil
}

type recorded struct {
	statuses []Status
	user     []string
	jarvis   []string
	messages []Message
	errors   []string
}

type recorder struct {
	mu sync.Mutex
	recorded
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStatusChange: func(s Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, s)
		},
		OnUserTranscript: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.user = append(r.user, text)
		},
		OnJarvisTranscript: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.jarvis = append(r.jarvis, text)
		},
		OnMessage: func(m Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, m)
		},
		OnError: func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, msg)
		},
	}
}

func (r *recorder) snapshot() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorded{
		statuses: append([]Status(nil), r.statuses...),
		user:     append([]string(nil), r.user...),
		jarvis:   append([]string(nil), r.jarvis...),
		messages: append([]Message(nil), r.messages...),
		errors:   append([]string(nil), r.errors...),
	}
}

func (r *recorder) lastStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// pcmChunk returns a base64 payload of n silent 16-bit samples
func pcmChunk(n int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, n*2))
}

type testEnv struct {
	t       *testing.T
	sess    *Session
	creds   *fakeCredentials
	dialer  *fakeDialer
	conn    *fakeConn
	devices *fakeDevices
	tools   *fakeTools
	video   *fakeVideo
	rec     *recorder
}

func newTestEnv(t *testing.T) *testEnv {
	conn := &fakeConn{}
	env := &testEnv{
		t:      t,
		creds:  &fakeCredentials{has: true},
		conn:   conn,
		dialer: &fakeDialer{conn: conn},
		devices: &fakeDevices{
			input:   &fakeInput{node: &fakeNode{}},
			output:  &fakeOutput{},
			capture: &fakeCapture{},
		},
		tools: &fakeTools{result: browser.Succeed("ok")},
		video: &fakeVideo{url: "https://video.example/v.mp4"},
		rec:   &recorder{},
	}
	return env
}

func (e *testEnv) newSession(cfg Config) *Session {
	e.sess = NewSession(cfg, Dependencies{
		Credentials: e.creds,
		Dialer:      e.dialer,
		Devices:     e.devices,
		Tools:       e.tools,
		Video:       e.video,
		Logger:      zerolog.Nop(),
	}, e.rec.callbacks())
	return e.sess
}

// startListening starts a session, waits for acquisition and opens the connection
func (e *testEnv) startListening() {
	e.t.Helper()
	if e.sess == nil {
		e.newSession(Config{})
	}
	dials := e.dialer.callCount()
	e.sess.Start(context.Background())
	waitFor(e.t, "capture pipeline", func() bool { return e.devices.input.frameHandler() != nil })
	waitFor(e.t, "dial", func() bool { return e.dialer.callCount() > dials })
	e.dialer.connHandler().OnOpen()
	waitFor(e.t, "LISTENING", func() bool { return e.rec.lastStatus() == StatusListening })
	waitFor(e.t, "connection", e.connReady)
}

// connReady reports whether the running session has resolved its connection
func (e *testEnv) connReady() bool {
	e.sess.mu.Lock()
	r := e.sess.run
	e.sess.mu.Unlock()
	if r == nil {
		return false
	}
	_, ok := r.conn.ready()
	return ok
}

func (e *testEnv) send(msg ServerMessage) {
	e.dialer.connHandler().OnMessage(msg)
}

var errBoom = errors.New("boom")
