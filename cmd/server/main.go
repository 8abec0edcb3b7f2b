package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/tts-gateway/internal/api"
	"github.com/lexiqai/tts-gateway/internal/cache"
	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/resilience"
	"github.com/lexiqai/tts-gateway/internal/tts"
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
		Str("tts_api_url", cfg.TTSAPIURL).
		Str("cache_backend", cfg.CacheBackend).
		Bool("api_key", cfg.GoogleAPIKey != "").
		Bool("service_account", cfg.UsesServiceAccount()).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("TTS Gateway Service starting")

	store, err := cache.New(cache.Options{
		Backend:     cache.Backend(cfg.CacheBackend),
		Dir:         cfg.CacheDir,
		Capacity:    cfg.CacheCapacity,
		Compression: cfg.CacheCompression,
	}, observability.ComponentLogger("cache"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize TTS cache")
	}
	defer store.Close()

	ctx := context.Background()
	provider := tts.NewGoogleClient(ctx, cfg, observability.ComponentLogger("google_tts"))

	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.InitialBackoff(),
		MaxBackoff:        cfg.MaxBackoff(),
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	clientOpts := []tts.ClientOption{
		tts.WithRetryConfig(retry),
		tts.WithLogger(observability.ComponentLogger("tts_client")),
	}
	var breaker *resilience.CircuitBreaker
	if cfg.CircuitBreakerMaxFailures > 0 {
		breaker = resilience.NewCircuitBreaker("google_tts", cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
		observability.UpdateCircuitBreakerState(breaker.Name(), int(resilience.StateClosed))
		breaker.OnStateChange = func(name string, from, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		}
		clientOpts = append(clientOpts, tts.WithCircuitBreaker(breaker))
	}
	client := tts.NewClient(provider, clientOpts...)

	service := tts.NewService(client, store, tts.ServiceConfig{
		MaxChunkBytes:   cfg.TTSMaxChunkBytes,
		Model:           cfg.TTSModel,
		DefaultLanguage: cfg.TTSDefaultLanguage,
	}, observability.ComponentLogger("tts_service"))

	voices := tts.NewVoiceCatalog(provider, cfg.VoicesTTL(), retry, observability.ComponentLogger("voices"))

	// Create HTTP server
	mux := http.NewServeMux()

	var handlerOpts []api.Option
	if store.ServesFiles() {
		handlerOpts = append(handlerOpts, api.WithCacheFiles(store.Dir()))
		logger.Info().Str("dir", store.Dir()).Msg("Serving cached audio at /tts-cache/")
	}
	api.NewHandler(service, voices, observability.ComponentLogger("api"), handlerOpts...).Register(mux)

	// Health check endpoint
	mux.HandleFunc("GET /health", observability.HealthCheckHandler())

	// Readiness: credentials resolve, the cache tier is usable and the
	// provider breaker is not open
	checks := map[string]observability.HealthCheckFunc{
		"google_tts": provider.CheckCredentials,
		"cache": func(ctx context.Context) (bool, error) {
			if _, err := store.Stats(); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	if breaker != nil {
		checks["google_tts_circuit"] = func(ctx context.Context) (bool, error) {
			state, requests, failures, failureRate := breaker.GetStats()
			if state == resilience.StateOpen {
				return false, fmt.Errorf("circuit open: %d of %d provider calls failed (%.1f%%)", failures, requests, failureRate)
			}
			return true, nil
		}
	}
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Long-text synthesis runs several provider calls back to back, so the
	// write timeout covers a full retry budget rather than one call.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/api/tts", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
