// Package live orchestrates a realtime voice session with the model: it owns the
// connection, the audio contexts and capture, streams microphone audio and camera
// frames, plays model audio back without gaps, executes tool calls and assembles
// finished turns into chat messages.
package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/observability"
)

// Config holds the media parameters of a session
type Config struct {
	InputSampleRate  int
	OutputSampleRate int
	// FrameSize is the number of samples per encoded microphone frame
	FrameSize int
	// FrameRate is the number of camera frames sent per second
	FrameRate   float64
	JPEGQuality int
	Connect     ConnectConfig
}

func (c Config) withDefaults() Config {
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = 16000
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = 24000
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 4096
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 2
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 50
	}
	return c
}

// Dependencies are the collaborators a session drives
type Dependencies struct {
	Credentials Credentials
	Dialer      Dialer
	Devices     MediaDevices
	Tools       ToolExecutor
	// Video is optional; without it video prompts fail with a notice on the message
	Video  VideoGenerator
	Logger zerolog.Logger
}

// Session is a single live voice session. Start and Stop may be called from any
// goroutine, including from inside a callback.
type Session struct {
	cfg    Config
	deps   Dependencies
	logger zerolog.Logger
	events *emitter

	mu     sync.Mutex
	status Status
	run    *run
}

// run holds everything acquired by one Start. Mutable fields are guarded by
// Session.mu; a run that is no longer Session.run is stale and its late events
// are ignored.
type run struct {
	id      string
	logger  zerolog.Logger
	metrics *observability.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	conn    *connFuture
	// dialed is set once dial owns resolving conn
	dialed bool

	input   InputContext
	output  OutputContext
	capture Capture
	node    ProcessingNode
	sampler *frameSampler

	pending   map[uint64]PlaybackSource
	nextID    uint64
	nextStart float64

	userText  strings.Builder
	modelText strings.Builder
}

// NewSession creates a session in the OFF state
func NewSession(cfg Config, deps Dependencies, cb Callbacks) *Session {
	logger := deps.Logger.With().Str("component", "live_session").Logger()
	return &Session{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: logger,
		events: newEmitter(cb, logger),
		status: StatusOff,
	}
}

// Status returns the current voice status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ID returns the identifier of the running session, or "" when none is running
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.id
}

// Start begins connecting in the background. It is a no-op while a session is
// already connecting or running. Failures are reported through OnError.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if status := s.status; status.Active() {
		s.mu.Unlock()
		s.logger.Debug().Str("status", status.String()).Msg("Start ignored, session already active")
		return
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:      id,
		logger:  s.logger.With().Str("session_id", id).Logger(),
		metrics: observability.NewSessionMetrics(id),
		ctx:     runCtx,
		cancel:  cancel,
		conn:    newConnFuture(),
		pending: make(map[uint64]PlaybackSource),
	}
	s.run = r
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()
	s.events.flush()

	r.metrics.RecordSessionStart()
	r.logger.Info().Msg("Starting live session")
	go s.connect(r)
}

// Stop tears the session down. It is a no-op when the session is already OFF and
// never fails; release errors are logged.
func (s *Session) Stop() {
	s.stop(nil)
}

func (s *Session) connect(r *run) {
	ctx, span := tracer.Start(r.ctx, "live.session.start",
		trace.WithAttributes(attribute.String("session.id", r.id)))
	defer span.End()

	err := s.acquire(ctx, r)
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.failStart(r, err)
}

// acquire opens every resource of the run in order. Each resource is handed to
// the run as soon as it exists so that a concurrent Stop releases it.
func (s *Session) acquire(ctx context.Context, r *run) error {
	if err := s.ensureCredential(ctx); err != nil {
		return err
	}
	if s.deps.Devices == nil || s.deps.Dialer == nil {
		return fmt.Errorf("%w: session has no media devices or dialer", ErrMediaAcquisition)
	}

	input, err := s.deps.Devices.OpenInput(s.cfg.InputSampleRate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
	}
	if !s.adopt(r, func() { r.input = input }) {
		return closeQuietly(r, "input context", input.Close)
	}

	output, err := s.deps.Devices.OpenOutput(s.cfg.OutputSampleRate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
	}
	if !s.adopt(r, func() { r.output = output }) {
		return closeQuietly(r, "output context", output.Close)
	}

	if !s.adopt(r, func() { r.dialed = true }) {
		return nil
	}
	go s.dial(r)

	capture, err := s.deps.Devices.Acquire(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
	}
	if !s.adopt(r, func() { r.capture = capture }) {
		return closeQuietly(r, "capture", capture.Stop)
	}

	node, err := input.Process(capture, s.cfg.FrameSize, s.captureHandler(r))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
	}
	if !s.adopt(r, func() { r.node = node }) {
		return closeQuietly(r, "processing node", node.Disconnect)
	}

	if frames := capture.Frames(); frames != nil {
		sampler := s.startFrameSampler(r, frames)
		if !s.adopt(r, func() { r.sampler = sampler }) {
			sampler.Stop()
			return nil
		}
	}

	r.logger.Info().
		Int("input_sample_rate", s.cfg.InputSampleRate).
		Int("output_sample_rate", s.cfg.OutputSampleRate).
		Bool("vision", capture.Frames() != nil).
		Msg("Media acquired")
	return nil
}

func (s *Session) dial(r *run) {
	conn, err := s.deps.Dialer.Dial(r.ctx, s.cfg.Connect, s.connHandler(r))
	if err == nil && conn == nil {
		err = errors.New("dialer returned no connection")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnection, err)
	}
	r.conn.resolve(conn, err)
	if err != nil {
		s.failStart(r, err)
	}
}

func (s *Session) ensureCredential(ctx context.Context) error {
	creds := s.deps.Credentials
	if creds == nil {
		return ErrCredentialMissing
	}
	if creds.HasCredential() {
		return nil
	}
	if err := creds.PromptForCredential(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialMissing, err)
	}
	if !creds.HasCredential() {
		return ErrCredentialMissing
	}
	return nil
}

// adopt attaches a freshly acquired resource to r if r is still the live run
func (s *Session) adopt(r *run, attach func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != r || !s.status.Active() {
		return false
	}
	attach()
	return true
}

func closeQuietly(r *run, name string, release func() error) error {
	if err := release(); err != nil {
		r.logger.Warn().Err(err).Str("resource", name).Msg("Failed to release resource acquired after stop")
	}
	return nil
}

func (s *Session) failStart(r *run, err error) {
	switch {
	case errors.Is(err, ErrCredentialMissing):
		r.metrics.RecordError("credential_missing", "live_session")
		s.fail(r, credentialMissingMessage)
	case IsAuthError(err):
		r.metrics.RecordError("auth", "live_session")
		if s.deps.Credentials != nil {
			if perr := s.deps.Credentials.PromptForCredential(r.ctx); perr != nil {
				r.logger.Warn().Err(perr).Msg("Credential re-selection failed")
			}
		}
		s.fail(r, authFailureMessage)
	default:
		kind := "connection"
		if errors.Is(err, ErrMediaAcquisition) {
			kind = "media"
		}
		r.metrics.RecordError(kind, "live_session")
		s.fail(r, err.Error())
	}
}

// fail moves a live run to ERROR, reports msg and tears the run down
func (s *Session) fail(r *run, msg string) {
	s.mu.Lock()
	if s.run != r || !s.status.Active() {
		s.mu.Unlock()
		return
	}
	if msg == "" {
		msg = unknownErrorMessage
	}
	r.logger.Error().Str("error", msg).Msg("Live session failed")
	s.setStatusLocked(StatusError)
	s.events.error(msg)
	s.mu.Unlock()
	s.events.flush()

	s.stop(r)
}

// stop tears down target, or the current run when target is nil
func (s *Session) stop(target *run) {
	s.mu.Lock()
	if s.status == StatusOff || (target != nil && s.run != target) {
		s.mu.Unlock()
		return
	}
	r := s.run
	s.setStatusLocked(StatusOff)
	s.run = nil

	var res detached
	if r != nil {
		res = r.detach()
	}
	s.mu.Unlock()
	s.events.flush()

	if r != nil {
		s.release(r, res)
	}

	s.mu.Lock()
	s.events.userTranscript("")
	s.events.jarvisTranscript("")
	s.mu.Unlock()
	s.events.flush()
}

// detached is the set of resources taken from a run for release
type detached struct {
	sampler *frameSampler
	sources []PlaybackSource
	capture Capture
	node    ProcessingNode
	input   InputContext
	output  OutputContext
	dialed  bool
}

// detach empties the run's resource slots. Caller holds Session.mu.
func (r *run) detach() detached {
	res := detached{
		sampler: r.sampler,
		capture: r.capture,
		node:    r.node,
		input:   r.input,
		output:  r.output,
		dialed:  r.dialed,
	}
	for _, src := range r.pending {
		res.sources = append(res.sources, src)
	}
	r.pending = make(map[uint64]PlaybackSource)
	r.nextStart = 0
	r.sampler, r.capture, r.node, r.input, r.output = nil, nil, nil, nil, nil
	r.userText.Reset()
	r.modelText.Reset()
	return res
}

// release frees every detached resource. Each step runs even if an earlier one
// fails or panics.
func (s *Session) release(r *run, res detached) {
	r.cancel()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"frame sampler", func() error {
			if res.sampler != nil {
				res.sampler.Stop()
			}
			return nil
		}},
		{"playback", func() error {
			var errs []error
			for _, src := range res.sources {
				errs = append(errs, safely("playback source", func() error { src.Stop(); return nil }))
			}
			return errors.Join(errs...)
		}},
		{"capture", func() error {
			if res.capture == nil {
				return nil
			}
			return res.capture.Stop()
		}},
		{"processing node", func() error {
			if res.node == nil {
				return nil
			}
			return res.node.Disconnect()
		}},
		{"input context", func() error {
			if res.input == nil {
				return nil
			}
			return res.input.Close()
		}},
		{"output context", func() error {
			if res.output == nil {
				return nil
			}
			return res.output.Close()
		}},
	}

	var errs []error
	for _, step := range steps {
		if err := safely(step.name, step.fn); err != nil {
			errs = append(errs, err)
		}
	}

	if !res.dialed {
		r.conn.resolve(nil, errStopped)
	}
	go func() {
		// a started dial is bounded by the cancelled run context
		conn, err := r.conn.wait(context.Background())
		if err != nil || conn == nil {
			return
		}
		if err := safely("connection", conn.Close); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close live connection")
		}
	}()

	r.metrics.RecordSessionEnd()
	if err := errors.Join(errs...); err != nil {
		r.logger.Warn().Err(err).Msg("Live session stopped with release errors")
		return
	}
	r.logger.Info().Msg("Live session stopped")
}

func safely(name string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panic: %v", name, p)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// setStatusLocked records a transition and queues the callback. Caller holds s.mu.
func (s *Session) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	if s.run != nil {
		s.run.metrics.RecordStatus(status.String())
		s.run.logger.Debug().Str("status", status.String()).Msg("Status changed")
	}
	s.events.status(status)
}

// current reports whether r is the live run and may still act. Caller holds s.mu.
func (s *Session) current(r *run) bool {
	return s.run == r && s.status.Active()
}

// streamingConn returns the connection if r may push media right now
func (s *Session) streamingConn(r *run) (Conn, bool) {
	s.mu.Lock()
	ok := s.run == r && s.status.Streaming()
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.conn.ready()
}

func (s *Session) captureHandler(r *run) func([]float32) {
	return func(samples []float32) {
		blob := audio.EncodeFrame(samples, s.cfg.InputSampleRate)
		conn, ok := s.streamingConn(r)
		if !ok {
			return
		}
		if err := conn.SendAudio(blob); err != nil {
			r.logger.Debug().Err(err).Msg("Failed to send audio frame")
			return
		}
		r.metrics.RecordAudioBytes("inbound", int64(len(blob.Data)))
	}
}

func (s *Session) connHandler(r *run) ConnHandler {
	return ConnHandler{
		OnOpen: func() {
			s.mu.Lock()
			if s.run == r && s.status == StatusConnecting {
				s.setStatusLocked(StatusListening)
				r.logger.Info().Msg("Live connection open")
			}
			s.mu.Unlock()
			s.events.flush()
		},
		OnMessage: func(msg ServerMessage) {
			s.handleMessage(r, msg)
		},
		OnError: func(err error) {
			msg := unknownErrorMessage
			if err != nil && err.Error() != "" {
				msg = err.Error()
			}
			if IsAuthError(err) {
				s.failStart(r, err)
				return
			}
			s.fail(r, msg)
		},
		OnClose: func() {
			r.logger.Info().Msg("Live connection closed by server")
			s.stop(r)
		},
	}
}

var errStopped = errors.New("session stopped before connecting")

// connFuture resolves once with the dial outcome
type connFuture struct {
	once sync.Once
	done chan struct{}
	conn Conn
	err  error
}

func newConnFuture() *connFuture {
	return &connFuture{done: make(chan struct{})}
}

func (f *connFuture) resolve(conn Conn, err error) {
	f.once.Do(func() {
		f.conn, f.err = conn, err
		close(f.done)
	})
}

func (f *connFuture) wait(ctx context.Context) (Conn, error) {
	select {
	case <-f.done:
		if f.err == nil && f.conn == nil {
			return nil, errors.New("connection unavailable")
		}
		return f.conn, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *connFuture) ready() (Conn, bool) {
	select {
	case <-f.done:
		return f.conn, f.err == nil && f.conn != nil
	default:
		return nil, false
	}
}
