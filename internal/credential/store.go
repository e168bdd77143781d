// Package credential holds the model API key and obtains one from the user on demand.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrEmptyKey is returned when an empty key is supplied
	ErrEmptyKey = errors.New("API key is empty")
	// ErrNoPrompter means the store has no way to ask the user for a key
	ErrNoPrompter = errors.New("no credential prompt available")
)

// Prompter asks the user for an API key
type Prompter interface {
	Prompt(ctx context.Context) (string, error)
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(ctx context.Context) (string, error)

// Prompt calls f
func (f PrompterFunc) Prompt(ctx context.Context) (string, error) {
	return f(ctx)
}

// Store keeps the currently selected API key
type Store struct {
	mu       sync.RWMutex
	key      string
	prompter Prompter
	logger   zerolog.Logger

	// promptMu serializes prompts so concurrent starts ask the user once
	promptMu sync.Mutex
}

// NewStore creates a store seeded with initial, which may be empty
func NewStore(initial string, prompter Prompter, logger zerolog.Logger) *Store {
	return &Store{
		key:      strings.TrimSpace(initial),
		prompter: prompter,
		logger:   logger.With().Str("component", "credential").Logger(),
	}
}

// HasCredential reports whether a key is selected
func (s *Store) HasCredential() bool {
	return s.APIKey() != ""
}

// APIKey returns the selected key or ""
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// Set replaces the selected key
func (s *Store) Set(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
	s.logger.Info().Msg("API key selected")
	return nil
}

// SetPrompter replaces the prompt used by PromptForCredential
func (s *Store) SetPrompter(p Prompter) {
	s.promptMu.Lock()
	defer s.promptMu.Unlock()
	s.prompter = p
}

// PromptForCredential asks the user for a key and selects it. It fails if the
// user cancels or supplies an empty key.
func (s *Store) PromptForCredential(ctx context.Context) error {
	s.promptMu.Lock()
	defer s.promptMu.Unlock()

	if s.prompter == nil {
		return ErrNoPrompter
	}
	key, err := s.prompter.Prompt(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("API key prompt failed")
		return fmt.Errorf("API key prompt failed: %w", err)
	}
	return s.Set(key)
}

// Check is a readiness check that fails while no key is selected
func (s *Store) Check(ctx context.Context) error {
	if !s.HasCredential() {
		return errors.New("no API key selected")
	}
	return nil
}
