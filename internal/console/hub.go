// Package console bridges a live session to browser consoles over websocket. It
// relays session callbacks as JSON events and accepts start, stop and API key
// messages.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/live"
)

// Event types sent to consoles
const (
	EventStatus             = "status"
	EventUserTranscript     = "user_transcript"
	EventJarvisTranscript   = "jarvis_transcript"
	EventMessage            = "message"
	EventError              = "error"
	EventCredentialRequired = "credential_required"
)

// ErrNoConsole is returned by Prompt when no console is connected to answer
var ErrNoConsole = errors.New("no console connected")

// Event is one frame sent to consoles
type Event struct {
	Type    string        `json:"type"`
	Status  live.Status   `json:"status,omitempty"`
	Text    *string       `json:"text,omitempty"`
	Message *live.Message `json:"message,omitempty"`
	Error   string        `json:"error,omitempty"`
}

const clientBuffer = 256

type client struct {
	send chan []byte
	// done is closed when the hub drops the client
	done chan struct{}
}

// Hub fans session events out to every connected console
type Hub struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	// prompts counts Prompt calls waiting for a key
	prompts int

	keys chan string
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "console").Logger(),
		clients: make(map[*client]struct{}),
		keys:    make(chan string),
	}
}

// Callbacks returns session callbacks that broadcast each change
func (h *Hub) Callbacks() live.Callbacks {
	return live.Callbacks{
		OnStatusChange: func(s live.Status) {
			h.Broadcast(Event{Type: EventStatus, Status: s})
		},
		OnUserTranscript: func(text string) {
			h.Broadcast(Event{Type: EventUserTranscript, Text: &text})
		},
		OnJarvisTranscript: func(text string) {
			h.Broadcast(Event{Type: EventJarvisTranscript, Text: &text})
		},
		OnMessage: func(m live.Message) {
			h.Broadcast(Event{Type: EventMessage, Message: &m})
		},
		OnError: func(msg string) {
			h.Broadcast(Event{Type: EventError, Error: msg})
		},
	}
}

// Broadcast queues ev for every console. A console that cannot keep up is dropped.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode console event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Msg("Console send buffer full, dropping console")
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected consoles
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Prompt implements credential.Prompter by asking connected consoles for a key
func (h *Hub) Prompt(ctx context.Context) (string, error) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return "", ErrNoConsole
	}
	h.prompts++
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.prompts--
		h.mu.Unlock()
	}()

	h.Broadcast(Event{Type: EventCredentialRequired})

	select {
	case key := <-h.keys:
		return key, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// offerKey hands a key from a console to a pending Prompt. It reports false when
// nothing is waiting.
func (h *Hub) offerKey(key string) bool {
	h.mu.Lock()
	waiting := h.prompts > 0
	h.mu.Unlock()
	if !waiting {
		return false
	}

	select {
	case h.keys <- key:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func (h *Hub) register() *client {
	c := &client{send: make(chan []byte, clientBuffer), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("consoles", n).Msg("Console connected")
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("consoles", n).Msg("Console disconnected")
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.done)
}
