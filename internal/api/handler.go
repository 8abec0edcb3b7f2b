package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/tts"
)

const (
	maxRequestBytes = 1 << 20

	audioCacheControl  = "public, max-age=31536000, immutable"
	voicesCacheControl = "public, max-age=3600"
)

// Synthesizer turns a request into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// VoiceSource lists available voices
type VoiceSource interface {
	Voices(ctx context.Context) ([]tts.Voice, error)
}

// VoicesResponse is the body of GET /api/voices
type VoicesResponse struct {
	Voices []tts.Voice `json:"voices"`
	Count  int         `json:"count"`
}

// Handler serves the synthesis API
type Handler struct {
	synth    Synthesizer
	voices   VoiceSource
	cacheDir string // served under /tts-cache/ when set
	logger   zerolog.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithCacheFiles serves the plain audio files in dir under /tts-cache/
func WithCacheFiles(dir string) Option {
	return func(h *Handler) { h.cacheDir = dir }
}

// NewHandler creates the API handler
func NewHandler(synth Synthesizer, voices VoiceSource, logger zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		synth:  synth,
		voices: voices,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the API routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tts", h.handleSynthesize)
	mux.HandleFunc("GET /api/voices", h.handleVoices)
	mux.HandleFunc("GET /streams/tts", h.handleStream)

	if h.cacheDir != "" {
		mux.Handle("GET /tts-cache/", http.StripPrefix("/tts-cache/", cacheFileServer(h.cacheDir)))
	}
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	logger, requestID := observability.WithRequestID(h.logger, r.Header.Get("X-Request-ID"))
	w.Header().Set("X-Request-ID", requestID)
	ctx := observability.ContextWithRequestID(r.Context(), requestID)

	var req tts.Request
	if err := decodeRequest(w, r, &req); err != nil {
		logger.Warn().Err(err).Msg("Invalid synthesis request body")
		writeError(w, err, requestID)
		return
	}

	res, err := h.synth.Synthesize(ctx, req)
	if err != nil {
		logEvent := logger.Error()
		if tts.KindOf(err) == tts.KindInvalidArgument {
			logEvent = logger.Warn()
		}
		logEvent.Err(err).Str("kind", string(tts.KindOf(err))).Msg("Synthesis failed")
		writeError(w, err, requestID)
		return
	}

	logger.Info().
		Str("cache_key", res.CacheKey).
		Bool("cache_hit", res.CacheHit).
		Int("bytes", len(res.Audio)).
		Msg("Synthesis served")

	header := w.Header()
	header.Set("Content-Type", res.MimeType)
	header.Set("Content-Length", strconv.Itoa(len(res.Audio)))
	header.Set("Cache-Control", audioCacheControl)
	header.Set("X-Cache-Key", res.CacheKey)
	header.Set("X-Cache-Hit", strconv.FormatBool(res.CacheHit))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		logger.Debug().Err(err).Msg("Client went away while writing audio")
	}
}

func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	logger, requestID := observability.WithRequestID(h.logger, r.Header.Get("X-Request-ID"))
	w.Header().Set("X-Request-ID", requestID)

	voices, err := h.voices.Voices(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch voices")
		writeError(w, err, requestID)
		return
	}

	w.Header().Set("Cache-Control", voicesCacheControl)
	writeJSON(w, http.StatusOK, VoicesResponse{Voices: voices, Count: len(voices)})
}

// decodeRequest reads a JSON synthesis request; failures are invalid-argument
func decodeRequest(w http.ResponseWriter, r *http.Request, req *tts.Request) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &tts.Error{Kind: tts.KindInvalidArgument, Op: "decode", Err: fmt.Errorf("request body exceeds %d bytes", maxRequestBytes)}
		}
		return &tts.Error{Kind: tts.KindInvalidArgument, Op: "decode", Err: fmt.Errorf("invalid JSON body: %w", err)}
	}
	return nil
}

// cacheFileServer serves <key>.<ext> files, never directory listings or dotfiles
func cacheFileServer(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		base := path.Base(name)
		if name == "/" || strings.HasPrefix(base, ".") || strings.Count(name, "/") != 1 {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", audioCacheControl)
		files.ServeHTTP(w, r)
	})
}
