package tts

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lexiqai/tts-gateway/internal/observability"
)

// Service runs the synthesis pipeline: normalize, key, cache lookup, and on
// a miss plan, synthesize, assemble and store.
type Service struct {
	client          *Client
	cache           AudioCache
	maxChunkBytes   int
	model           string
	defaultLanguage string
	inflight        singleflight.Group
	logger          zerolog.Logger
}

// ServiceConfig holds the pipeline settings
type ServiceConfig struct {
	MaxChunkBytes   int
	Model           string
	DefaultLanguage string
}

// NewService creates a pipeline over client and cache
func NewService(client *Client, cache AudioCache, cfg ServiceConfig, logger zerolog.Logger) *Service {
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = MaxChunkBytes
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = DefaultLanguageCode
	}
	return &Service{
		client:          client,
		cache:           cache,
		maxChunkBytes:   cfg.MaxChunkBytes,
		model:           cfg.Model,
		defaultLanguage: cfg.DefaultLanguage,
		logger:          logger,
	}
}

// Prepare normalizes and validates req and derives its cache key
func (s *Service) Prepare(req Request) (Request, string, error) {
	req = req.Normalize(s.defaultLanguage)
	if err := req.Validate(); err != nil {
		return req, "", err
	}
	return req, CacheKey(req, s.model), nil
}

// Synthesize returns audio for req, from the cache when possible.
// Concurrent misses for the same key share one provider synthesis.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	metrics := observability.NewRequestMetrics(observability.RequestIDFromContext(ctx))

	req, key, err := s.Prepare(req)
	if err != nil {
		metrics.RecordEnd(string(KindOf(err)), false, 0)
		return nil, err
	}

	mimeType := AudioMimeType(req.AudioEncoding)
	logger := s.logger.With().Str("cache_key", key).Logger()

	if s.cache.Has(key) {
		if audio, ok := s.cache.Get(key); ok {
			observability.RecordCacheLookup(true)
			logger.Debug().Int("bytes", len(audio)).Msg("Cache hit")
			metrics.RecordEnd("success", true, len(audio))
			return &Result{Audio: audio, MimeType: mimeType, CacheKey: key, CacheHit: true}, nil
		}
		logger.Warn().Msg("Cache entry present but audio unavailable, synthesizing")
	}
	observability.RecordCacheLookup(false)

	// The shared synthesis outlives any single caller; each caller stops
	// waiting on its own cancellation.
	flightCtx := context.WithoutCancel(ctx)
	flight := s.inflight.DoChan(key, func() (interface{}, error) {
		// A flight for this key may have completed since the lookup above
		if audio, ok := s.cache.Get(key); ok {
			return flightResult{audio: audio, cached: true}, nil
		}
		audio, err := s.synthesize(flightCtx, req, key, mimeType, metrics, logger)
		return flightResult{audio: audio}, err
	})

	var outcome singleflight.Result
	select {
	case outcome = <-flight:
	case <-ctx.Done():
		logger.Debug().Err(ctx.Err()).Msg("Caller left before synthesis finished")
		metrics.RecordEnd(string(KindOf(ctx.Err())), false, 0)
		return nil, ctx.Err()
	}
	if outcome.Err != nil {
		metrics.RecordEnd(string(KindOf(outcome.Err)), false, 0)
		return nil, outcome.Err
	}

	v, shared := outcome.Val, outcome.Shared
	res := v.(flightResult)
	if shared {
		logger.Debug().Msg("Joined in-flight synthesis")
	}
	metrics.RecordEnd("success", res.cached, len(res.audio))
	return &Result{Audio: res.audio, MimeType: mimeType, CacheKey: key, CacheHit: res.cached}, nil
}

type flightResult struct {
	audio  []byte
	cached bool
}

func (s *Service) synthesize(ctx context.Context, req Request, key, mimeType string, metrics *observability.RequestMetrics, logger zerolog.Logger) ([]byte, error) {
	start := time.Now()
	input, ssml := req.Input()

	chunks := PlanChunks(input, s.maxChunkBytes)
	metrics.RecordChunks(len(chunks))
	logger.Info().
		Int("chunks", len(chunks)).
		Int("input_bytes", len(input)).
		Bool("ssml", ssml).
		Msg("Cache miss, synthesizing")

	buffers, err := s.client.Synthesize(ctx, chunks, req.Params(), ssml)
	if err != nil {
		return nil, err
	}

	audio := AssembleAudio(buffers)
	s.cache.Set(key, audio, mimeType)

	logger.Info().
		Int("bytes", len(audio)).
		Dur("duration", time.Since(start)).
		Msg("Synthesis complete")
	return audio, nil
}
