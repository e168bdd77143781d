// Package videogen produces short videos from text prompts with the Veo model and
// returns a playable URL.
package videogen

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/lexiqai/jarvis-gateway/internal/observability"
	"github.com/lexiqai/jarvis-gateway/internal/resilience"
)

const scopeName = "github.com/lexiqai/jarvis-gateway/internal/videogen"

var tracer = otel.Tracer(scopeName)

var (
	// ErrNoVideo means the job finished without producing a video
	ErrNoVideo = errors.New("no video returned")
	// ErrNoKey means no API key is selected
	ErrNoKey = errors.New("no API key selected")

	// ErrNoOperation is returned when the backend answers without an operation to poll
	ErrNoOperation = errors.New("no video operation returned")
)

// KeySource supplies the API key used for generation and download
type KeySource interface {
	APIKey() string
}

// Config controls the generation job
type Config struct {
	Model        string
	AspectRatio  string
	PollInterval time.Duration
	// MaxWait bounds the whole job, polling included
	MaxWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "veo-3.1-generate-preview"
	}
	if c.AspectRatio == "" {
		c.AspectRatio = "16:9"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 10 * time.Minute
	}
	return c
}

// backend runs the long-running operation
type backend interface {
	Start(ctx context.Context, key, model, prompt string, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	Poll(ctx context.Context, key string, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// Generator implements the session's video generation collaborator
type Generator struct {
	cfg     Config
	keys    KeySource
	backend backend
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewGenerator creates a generator backed by the Gemini API. retry and breaker may be nil.
func NewGenerator(cfg Config, keys KeySource, retry *resilience.RetryConfig, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Generator {
	return newGenerator(cfg, keys, genaiBackend{}, retry, breaker, logger)
}

func newGenerator(cfg Config, keys KeySource, b backend, retry *resilience.RetryConfig, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Generator {
	return &Generator{
		cfg:     cfg.withDefaults(),
		keys:    keys,
		backend: b,
		retry:   retry,
		breaker: breaker,
		logger:  logger.With().Str("component", "videogen").Logger(),
	}
}

// Generate submits prompt, waits for the job and returns a URL the client can play
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "videogen.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("prompt_length", len(prompt)),
	))
	defer span.End()

	start := time.Now()
	uri, err := g.generate(ctx, prompt)
	elapsed := time.Since(start)
	observability.RecordVideoGeneration(err == nil, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("Video generation failed")
		return "", err
	}
	g.logger.Info().Dur("elapsed", elapsed).Msg("Video generated")
	return uri, nil
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	key := ""
	if g.keys != nil {
		key = g.keys.APIKey()
	}
	if key == "" {
		return "", ErrNoKey
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.MaxWait)
	defer cancel()

	var op *genai.GenerateVideosOperation
	err := g.call(ctx, func() error {
		var err error
		op, err = g.backend.Start(ctx, key, g.cfg.Model, prompt, &genai.GenerateVideosConfig{
			NumberOfVideos: 1,
			AspectRatio:    g.cfg.AspectRatio,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to start video generation: %w", err)
	}
	if op == nil {
		return "", fmt.Errorf("failed to start video generation: %w", ErrNoOperation)
	}

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("video generation did not finish: %w", ctx.Err())
		case <-ticker.C:
		}

		current := op
		err := g.call(ctx, func() error {
			next, err := g.backend.Poll(ctx, key, current)
			if err == nil {
				op = next
			}
			return err
		})
		if err != nil {
			return "", fmt.Errorf("failed to poll video generation: %w", err)
		}
		if op == nil {
			return "", fmt.Errorf("failed to poll video generation: %w", ErrNoOperation)
		}
		g.logger.Debug().Bool("done", op.Done).Msg("Polled video generation")
	}

	if op.Error != nil {
		return "", fmt.Errorf("video generation failed: %v", operationMessage(op.Error))
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return "", ErrNoVideo
	}
	video := op.Response.GeneratedVideos[0].Video
	if video == nil || video.URI == "" {
		return "", ErrNoVideo
	}
	return withKey(video.URI, key)
}

// call runs fn behind the breaker with retries on transient failures
func (g *Generator) call(ctx context.Context, fn func() error) error {
	guarded := fn
	if g.breaker != nil {
		guarded = func() error { return g.breaker.Call(fn) }
	}
	if g.retry == nil {
		return guarded()
	}
	return resilience.RetryContext(ctx, guarded, g.retry, resilience.IsRetryableNetworkError)
}

func operationMessage(opErr map[string]any) any {
	if msg, ok := opErr["message"]; ok {
		return msg
	}
	return opErr
}

// withKey appends the API key so the download URL is directly playable
func withKey(uri, key string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid video URI: %w", err)
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// genaiBackend talks to the Gemini API with a client built for the current key
type genaiBackend struct{}

func (genaiBackend) client(ctx context.Context, key string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
}

func (b genaiBackend) Start(ctx context.Context, key, model, prompt string, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	client, err := b.client(ctx, key)
	if err != nil {
		return nil, err
	}
	return client.Models.GenerateVideos(ctx, model, prompt, nil, cfg)
}

func (b genaiBackend) Poll(ctx context.Context, key string, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	client, err := b.client(ctx, key)
	if err != nil {
		return nil, err
	}
	return client.Operations.GetVideosOperation(ctx, op, nil)
}
