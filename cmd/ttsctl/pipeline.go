package main

import (
	"context"

	"github.com/lexiqai/tts-gateway/internal/cache"
	"github.com/lexiqai/tts-gateway/internal/resilience"
	"github.com/lexiqai/tts-gateway/internal/tts"
)

func openStore() (*cache.Store, error) {
	return cache.New(cache.Options{
		Backend:     cache.Backend(cfg.CacheBackend),
		Dir:         cfg.CacheDir,
		Capacity:    cfg.CacheCapacity,
		Compression: cfg.CacheCompression,
	}, logger.With().Str("component", "cache").Logger())
}

func retryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.InitialBackoff(),
		MaxBackoff:        cfg.MaxBackoff(),
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

func newProvider(ctx context.Context) *tts.GoogleClient {
	return tts.NewGoogleClient(ctx, cfg, logger.With().Str("component", "google_tts").Logger())
}

// newService builds the synthesis pipeline on top of store. The CLI makes a
// handful of calls, so it runs without a circuit breaker.
func newService(ctx context.Context, store *cache.Store) *tts.Service {
	client := tts.NewClient(newProvider(ctx),
		tts.WithRetryConfig(retryConfig()),
		tts.WithLogger(logger.With().Str("component", "tts_client").Logger()),
	)
	return tts.NewService(client, store, tts.ServiceConfig{
		MaxChunkBytes:   cfg.TTSMaxChunkBytes,
		Model:           cfg.TTSModel,
		DefaultLanguage: cfg.TTSDefaultLanguage,
	}, logger.With().Str("component", "tts_service").Logger())
}
