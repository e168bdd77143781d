package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/browser"
	"github.com/lexiqai/jarvis-gateway/internal/live"
)

// ErrClosed is returned when sending on a closed connection
var ErrClosed = errors.New("live connection is closed")

// Conn is an open live model connection
type Conn struct {
	ws      *websocket.Conn
	handler live.ConnHandler
	logger  zerolog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
	opened  atomic.Bool
}

func newConn(ws *websocket.Conn, handler live.ConnHandler, logger zerolog.Logger) *Conn {
	return &Conn{ws: ws, handler: handler, logger: logger}
}

// SendAudio streams one PCM frame
func (c *Conn) SendAudio(blob audio.Blob) error {
	return c.send(audioInput(blob))
}

// SendImage streams one camera frame
func (c *Conn) SendImage(blob audio.Blob) error {
	return c.send(videoInput(blob))
}

// SendToolResult answers a function call
func (c *Conn) SendToolResult(id, name string, result browser.Result) error {
	msg, err := toolResult(id, name, result)
	if err != nil {
		return fmt.Errorf("failed to encode tool result: %w", err)
	}
	return c.send(msg)
}

func (c *Conn) send(v any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Close ends the connection. Handlers are not called for a locally closed connection.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(2*time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping malformed server frame")
			continue
		}

		if msg.SetupComplete != nil && c.opened.CompareAndSwap(false, true) {
			c.logger.Debug().Msg("Setup complete")
			if c.handler.OnOpen != nil {
				c.handler.OnOpen()
			}
		}
		if msg.GoAway != nil {
			c.logger.Warn().Str("time_left", msg.GoAway.TimeLeft).Msg("Server is going away")
		}
		if !msg.empty() && c.handler.OnMessage != nil {
			c.handler.OnMessage(msg.toServerMessage())
		}
	}
}

func (c *Conn) readFailed(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway):
		c.logger.Info().Int("code", ce.Code).Msg("Live connection closed by server")
	case errors.As(err, &ce):
		c.reportError(closeError(ce))
	default:
		c.reportError(err)
	}
	_ = c.ws.Close()
	if c.handler.OnClose != nil {
		c.handler.OnClose()
	}
}

func (c *Conn) reportError(err error) {
	c.logger.Error().Err(err).Msg("Live connection failed")
	if c.handler.OnError != nil {
		c.handler.OnError(err)
	}
}
