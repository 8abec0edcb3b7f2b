package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/resilience"
)

// Client synthesizes planned chunks one after another through a Provider.
// Chunks are never sent in parallel: chunk i's audio must precede chunk
// i+1's, and the provider's quota is shared by every request.
type Client struct {
	provider Provider
	retry    *resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithRetryConfig sets the per-chunk retry policy
func WithRetryConfig(cfg *resilience.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithCircuitBreaker guards provider calls with cb
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a synthesis client around provider
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		retry:    resilience.DefaultRetryConfig(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize returns one audio buffer per chunk, in chunk order. If any chunk
// fails after its retries the whole call fails and no audio is returned.
func (c *Client) Synthesize(ctx context.Context, chunks []Chunk, params VoiceParams, ssml bool) ([][]byte, error) {
	buffers := make([][]byte, 0, len(chunks))

	for _, chunk := range chunks {
		// Stop issuing chunk calls once the caller has gone away
		if err := ctx.Err(); err != nil {
			return nil, classify("synthesize", err)
		}

		if len(chunks) > 1 {
			c.logger.Debug().
				Int("chunk", chunk.Index+1).
				Int("chunks", len(chunks)).
				Int("bytes", len(chunk.Text)).
				Msg("Synthesizing chunk")
		}

		audio, err := c.synthesizeChunk(ctx, SpeechRequest{Input: chunk.Text, SSML: ssml, Params: params})
		if err != nil {
			c.logger.Error().Err(err).Int("chunk", chunk.Index).Msg("TTS synthesis failed")
			return nil, classify("synthesize", fmt.Errorf("chunk %d of %d: %w", chunk.Index+1, len(chunks), err))
		}
		buffers = append(buffers, audio)
	}

	return buffers, nil
}

func (c *Client) synthesizeChunk(ctx context.Context, req SpeechRequest) ([]byte, error) {
	cfg := *c.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		observability.RecordProviderRetry()
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("backoff", delay).
			Msg("TTS request failed, retrying")
		if c.retry.OnRetry != nil {
			c.retry.OnRetry(attempt, delay, err)
		}
	}

	return resilience.Do(ctx, &cfg, IsRetryable, func(ctx context.Context, attempt int) ([]byte, error) {
		return c.call(ctx, req)
	})
}

// call performs a single provider attempt, through the breaker when configured
func (c *Client) call(ctx context.Context, req SpeechRequest) ([]byte, error) {
	var audio []byte
	start := time.Now()

	invoke := func() error {
		var err error
		audio, err = c.provider.SynthesizeSpeech(ctx, req)
		if err == nil && len(audio) == 0 {
			err = errors.New("no audio content in response")
		}
		return err
	}

	var err error
	if c.breaker != nil {
		// Only transient provider failures say anything about provider health
		err = c.breaker.Call(invoke, IsRetryable)
	} else {
		err = invoke()
	}

	observability.RecordProviderCall(callStatus(err), time.Since(start))
	return audio, err
}

func callStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "circuit_open"
	}
	return string(KindOf(err))
}
