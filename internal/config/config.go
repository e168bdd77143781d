package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the Jarvis gateway
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort int    `envconfig:"GRPC_HEALTH_PORT" default:"0"` // 0 disables the gRPC health service

	// Gemini configuration. The API key is optional here; it is prompted for on demand.
	GeminiAPIKey          string `envconfig:"GEMINI_API_KEY" default:""`
	LiveModel             string `envconfig:"LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	LiveEndpoint          string `envconfig:"LIVE_ENDPOINT" default:"wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"`
	SystemInstruction     string `envconfig:"SYSTEM_INSTRUCTION" default:"You are JARVIS, a voice assistant that can operate the user's browser."`
	SystemInstructionFile string `envconfig:"SYSTEM_INSTRUCTION_FILE" default:""`

	// Audio and vision configuration
	InputSampleRate  int  `envconfig:"INPUT_SAMPLE_RATE" default:"16000"`  // Microphone capture rate (Hz)
	OutputSampleRate int  `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"` // Model audio playback rate (Hz)
	CaptureFrameSize int  `envconfig:"CAPTURE_FRAME_SIZE" default:"4096"`  // Samples per encoded microphone frame
	FrameRate        int  `envconfig:"FRAME_RATE" default:"2"`             // Vision frames per second
	JPEGQuality      int  `envconfig:"JPEG_QUALITY" default:"50"`          // 1..100
	VisionEnabled    bool `envconfig:"VISION_ENABLED" default:"true"`

	// Browser automation
	BrowserHeadless bool   `envconfig:"BROWSER_HEADLESS" default:"false"`
	BrowserStartURL string `envconfig:"BROWSER_START_URL" default:"about:blank"`

	// Video generation
	VideoModel        string `envconfig:"VIDEO_MODEL" default:"veo-3.1-generate-preview"`
	VideoPollInterval int    `envconfig:"VIDEO_POLL_INTERVAL" default:"10"` // seconds
	VideoMaxWait      int    `envconfig:"VIDEO_MAX_WAIT" default:"600"`     // seconds

	// Start a voice session as soon as the process is up
	AutoStart bool `envconfig:"AUTO_START" default:"false"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum browser launch attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Launch backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.SystemInstructionFile != "" {
		data, err := os.ReadFile(cfg.SystemInstructionFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read SYSTEM_INSTRUCTION_FILE: %w", err)
		}
		cfg.SystemInstruction = strings.TrimSpace(string(data))
	}

	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return fmt.Errorf("INPUT_SAMPLE_RATE and OUTPUT_SAMPLE_RATE must be positive")
	}
	if c.CaptureFrameSize <= 0 {
		return fmt.Errorf("CAPTURE_FRAME_SIZE must be positive")
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("FRAME_RATE must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.LiveModel == "" {
		return fmt.Errorf("LIVE_MODEL is required")
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
