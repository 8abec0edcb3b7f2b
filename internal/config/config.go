package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Cache backends accepted by CACHE_BACKEND
const (
	CacheBackendDisk   = "disk"   // LRU metadata + persistent audio files
	CacheBackendMemory = "memory" // LRU metadata only, audio is not retained
)

// Config holds all configuration for the TTS gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Google Cloud Text-to-Speech credentials.
	// Priority: API key > credentials JSON > Application Default Credentials
	// (which also honours GOOGLE_APPLICATION_CREDENTIALS).
	GoogleAPIKey          string `envconfig:"GOOGLE_API_KEY" default:""`
	GoogleCredentialsJSON string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS_JSON" default:""`
	GoogleCredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS" default:""`
	GoogleCloudProject    string `envconfig:"GOOGLE_CLOUD_PROJECT" default:""`

	// Synthesis configuration
	TTSAPIURL          string  `envconfig:"TTS_API_URL" default:"https://texttospeech.googleapis.com/v1"`
	TTSModel           string  `envconfig:"TTS_MODEL" default:""`                // Part of the cache key
	TTSDefaultLanguage string  `envconfig:"TTS_DEFAULT_LANGUAGE" default:"en-US"`
	TTSMaxChunkBytes   int     `envconfig:"TTS_MAX_CHUNK_BYTES" default:"4500"` // Provider limit is 5000 bytes
	TTSRequestTimeout  int     `envconfig:"TTS_REQUEST_TIMEOUT" default:"30"`   // seconds, per provider call
	TTSRateLimit       float64 `envconfig:"TTS_RATE_LIMIT" default:"10"`        // provider calls per second, 0 = unlimited

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // 0 disables the breaker
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"4"`             // Attempts per chunk, including the first
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"1000"`       // Initial backoff in milliseconds
	RetryMaxBackoff            int `envconfig:"RETRY_MAX_BACKOFF" default:"10000"`          // Backoff ceiling in milliseconds

	// Cache configuration
	CacheBackend     string `envconfig:"CACHE_BACKEND" default:"disk"`
	CacheDir         string `envconfig:"CACHE_DIR" default:"data/tts-cache"`
	CacheCapacity    int    `envconfig:"CACHE_CAPACITY" default:"200"` // In-memory entries
	CacheCompression bool   `envconfig:"CACHE_COMPRESSION" default:"false"`
	VoicesCacheTTL   int    `envconfig:"VOICES_CACHE_TTL" default:"3600"` // seconds

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

	return &cfg, nil
}

// Validate checks values envconfig cannot express as tags
func (c *Config) Validate() error {
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	switch c.CacheBackend {
	case CacheBackendDisk, CacheBackendMemory:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendDisk, CacheBackendMemory, c.CacheBackend)
	}

	if c.CacheBackend == CacheBackendDisk && c.CacheDir == "" {
		return fmt.Errorf("CACHE_DIR is required when CACHE_BACKEND=%s", CacheBackendDisk)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be positive, got %d", c.CacheCapacity)
	}
	if c.TTSMaxChunkBytes <= 0 {
		return fmt.Errorf("TTS_MAX_CHUNK_BYTES must be positive, got %d", c.TTSMaxChunkBytes)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.TTSRateLimit < 0 {
		return fmt.Errorf("TTS_RATE_LIMIT cannot be negative")
	}

	return nil
}

// UsesServiceAccount reports whether explicit service account credentials are configured
func (c *Config) UsesServiceAccount() bool {
	return c.GoogleCredentialsJSON != "" || c.GoogleCredentialsFile != ""
}

// RequestTimeout returns the per-call provider timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.TTSRequestTimeout) * time.Second
}

// InitialBackoff returns the first retry delay
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// MaxBackoff returns the retry delay ceiling
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoff) * time.Millisecond
}

// VoicesTTL returns how long the provider voice list is reused
func (c *Config) VoicesTTL() time.Duration {
	return time.Duration(c.VoicesCacheTTL) * time.Second
}
