package console

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/live"
	"github.com/lexiqai/jarvis-gateway/internal/observability"
)

var upgrader = websocket.Upgrader{
	// consoles are served from localhost during development
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Controller is the session surface a console drives
type Controller interface {
	Start(ctx context.Context)
	Stop()
	Status() live.Status
}

// KeySetter accepts an API key typed into a console
type KeySetter interface {
	Set(key string) error
}

// ConsoleMessage is a frame received from a console
type ConsoleMessage struct {
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`
}

// HandleWS upgrades the request and serves one console until it disconnects
func HandleWS(hub *Hub, ctrl Controller, keys KeySetter, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logger.With().Str("correlation_id", observability.NewCorrelationID()).Logger()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to upgrade console connection")
			return
		}

		c := hub.register()
		greeting, _ := json.Marshal(Event{Type: EventStatus, Status: ctrl.Status()})
		c.send <- greeting

		go writePump(conn, c)
		readPump(conn, c, hub, ctrl, keys, logger)
		hub.unregister(c)
		_ = conn.Close()
	}
}

func readPump(conn *websocket.Conn, c *client, hub *Hub, ctrl Controller, keys KeySetter, logger zerolog.Logger) {
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Console read error")
			}
			return
		}

		var msg ConsoleMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn().Err(err).Msg("Failed to parse console message")
			continue
		}

		switch msg.Type {
		case "start":
			logger.Info().Msg("Console requested session start")
			ctrl.Start(context.Background())
		case "stop":
			logger.Info().Msg("Console requested session stop")
			ctrl.Stop()
		case "credential":
			if hub.offerKey(msg.Key) {
				continue
			}
			if keys == nil {
				continue
			}
			if err := keys.Set(msg.Key); err != nil {
				hub.Broadcast(Event{Type: EventError, Error: err.Error()})
			}
		default:
			logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown console message")
		}
	}
}

func writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			return
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
