package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lexiqai/jarvis-gateway/internal/browser"
	"github.com/lexiqai/jarvis-gateway/internal/config"
	"github.com/lexiqai/jarvis-gateway/internal/console"
	"github.com/lexiqai/jarvis-gateway/internal/credential"
	"github.com/lexiqai/jarvis-gateway/internal/live"
	"github.com/lexiqai/jarvis-gateway/internal/media"
	"github.com/lexiqai/jarvis-gateway/internal/observability"
	"github.com/lexiqai/jarvis-gateway/internal/realtime"
	"github.com/lexiqai/jarvis-gateway/internal/resilience"
	"github.com/lexiqai/jarvis-gateway/internal/videogen"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("live_model", cfg.LiveModel).
		Str("log_level", cfg.LogLevel).
		Bool("vision_enabled", cfg.VisionEnabled).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Jarvis Gateway starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	breaker := func(name string) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(name, cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	}

	// Consoles answer key prompts unless a terminal is attached
	hub := console.NewHub(logger)
	var prompter credential.Prompter = hub
	if tp := credential.NewTerminalPrompter(os.Stdin, os.Stderr); tp.Available() {
		prompter = tp
	}
	keys := credential.NewStore(cfg.GeminiAPIKey, prompter, logger)

	// Browser automation target; its screenshots double as the vision feed
	page, err := browser.LaunchChrome(ctx, browser.ChromeConfig{
		Headless: cfg.BrowserHeadless,
		StartURL: cfg.BrowserStartURL,
	}, &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to launch browser")
	}
	defer page.Close()

	var camera live.FrameSource
	if cfg.VisionEnabled {
		camera = page
	}

	deps := live.Dependencies{
		Credentials: keys,
		Dialer:      realtime.NewDialer(cfg.LiveEndpoint, keys, retry, breaker("gemini_live"), logger),
		Tools:       browser.NewExecutor(page, logger),
		Video: videogen.NewGenerator(videogen.Config{
			Model:        cfg.VideoModel,
			PollInterval: time.Duration(cfg.VideoPollInterval) * time.Second,
			MaxWait:      time.Duration(cfg.VideoMaxWait) * time.Second,
		}, keys, retry, breaker("veo"), logger),
		Logger: logger,
	}

	devices, err := media.NewDevices(camera, logger)
	if err != nil {
		// sessions still start and report the media failure to the console
		logger.Error().Err(err).Msg("Audio devices unavailable")
	} else {
		deps.Devices = devices
		defer devices.Close()
	}

	session := live.NewSession(live.Config{
		InputSampleRate:  cfg.InputSampleRate,
		OutputSampleRate: cfg.OutputSampleRate,
		FrameSize:        cfg.CaptureFrameSize,
		FrameRate:        float64(cfg.FrameRate),
		JPEGQuality:      cfg.JPEGQuality,
		Connect: live.ConnectConfig{
			Model:             cfg.LiveModel,
			SystemInstruction: cfg.SystemInstruction,
			Tools:             browser.Declarations(),
		},
	}, deps, hub.Callbacks())

	// Create HTTP server
	mux := http.NewServeMux()

	// Console WebSocket bridge
	mux.HandleFunc("/session", console.HandleWS(hub, session, keys, logger))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	checks := map[string]observability.HealthCheckFunc{
		"credential": healthCheck(keys.Check),
		"browser":    healthCheck(page.Ping),
		"audio": func(ctx context.Context) (bool, error) {
			if devices == nil {
				return false, errors.New("audio backend not initialized")
			}
			err := devices.Check(ctx)
			return err == nil, err
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	if cfg.GRPCHealthPort > 0 {
		grpcHealth := observability.NewGRPCHealthServer(checks, 10*time.Second)
		go func() {
			if err := grpcHealth.Serve(ctx, cfg.GRPCHealthPort); err != nil {
				logger.Error().Err(err).Msg("gRPC health service failed")
			}
		}()
	}

	// Create HTTP server with timeouts. Websocket connections are hijacked, so
	// the write timeout only applies to plain requests.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      otelhttp.NewHandler(mux, "jarvis-gateway"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/session", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	if cfg.AutoStart {
		session.Start(ctx)
	}

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	session.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func healthCheck(fn func(ctx context.Context) error) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		err := fn(ctx)
		return err == nil, err
	}
}
