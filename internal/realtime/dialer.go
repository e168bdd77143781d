// Package realtime implements the live model connection over the Gemini Live
// BidiGenerateContent websocket protocol.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexiqai/jarvis-gateway/internal/live"
	"github.com/lexiqai/jarvis-gateway/internal/resilience"
)

const (
	scopeName = "github.com/lexiqai/jarvis-gateway/internal/realtime"

	// DefaultEndpoint is the public Gemini Live websocket endpoint
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
)

var tracer = otel.Tracer(scopeName)

// KeySource supplies the API key used for each new connection
type KeySource interface {
	APIKey() string
}

// Dialer opens live model connections
type Dialer struct {
	endpoint string
	keys     KeySource
	ws       *websocket.Dialer
	retry    *resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// NewDialer creates a dialer for endpoint. retry and breaker may be nil.
func NewDialer(endpoint string, keys KeySource, retry *resilience.RetryConfig, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Dialer {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Dialer{
		endpoint: endpoint,
		keys:     keys,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		retry:   retry,
		breaker: breaker,
		logger:  logger.With().Str("component", "realtime").Logger(),
	}
}

// Dial connects, sends the session setup and starts reading server events.
// handler.OnOpen fires once the server acknowledges the setup.
func (d *Dialer) Dial(ctx context.Context, cfg live.ConnectConfig, handler live.ConnHandler) (live.Conn, error) {
	ctx, span := tracer.Start(ctx, "realtime.dial", trace.WithAttributes(
		attribute.String("model", cfg.Model),
		attribute.Int("tools", len(cfg.Tools)),
	))
	defer span.End()

	ws, err := d.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c := newConn(ws, handler, d.logger)
	if err := c.send(clientMessage{Setup: newSetup(cfg)}); err != nil {
		_ = ws.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to send session setup: %w", err)
	}
	go c.readLoop()

	d.logger.Info().Str("model", cfg.Model).Int("tools", len(cfg.Tools)).Msg("Live connection dialed")
	return c, nil
}

func (d *Dialer) connect(ctx context.Context) (*websocket.Conn, error) {
	if d.keys == nil || d.keys.APIKey() == "" {
		return nil, live.ErrCredentialMissing
	}
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid live endpoint %q: %w", d.endpoint, err)
	}
	q := u.Query()
	q.Set("key", d.keys.APIKey())
	u.RawQuery = q.Encode()

	var ws *websocket.Conn
	dial := func() error {
		conn, resp, err := d.ws.DialContext(ctx, u.String(), nil)
		if err != nil {
			return handshakeError(resp, err)
		}
		ws = conn
		return nil
	}
	attempt := dial
	if d.breaker != nil {
		attempt = func() error { return d.breaker.Call(dial) }
	}

	if d.retry == nil {
		err = attempt()
	} else {
		err = resilience.RetryContext(ctx, attempt, d.retry, resilience.IsRetryableNetworkError)
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// handshakeError classifies a failed upgrade. Rejected keys become live.ErrAuth.
func handshakeError(resp *http.Response, err error) error {
	if resp == nil {
		return fmt.Errorf("live websocket dial failed: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: websocket dial failed (status %d)", live.ErrAuth, resp.StatusCode)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
		return resilience.NewRetryableError(fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err))
	}
	return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
}

// closeError maps a server close frame onto the session's error vocabulary
func closeError(ce *websocket.CloseError) error {
	text := ce.Text
	if text == "" {
		text = fmt.Sprintf("live connection closed with code %d", ce.Code)
	}
	err := errors.New(text)
	if live.IsAuthError(err) {
		return fmt.Errorf("%w: %s", live.ErrAuth, text)
	}
	return err
}
