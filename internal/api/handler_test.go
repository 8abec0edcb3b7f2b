package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"

	"github.com/lexiqai/tts-gateway/internal/tts"
)

// fakeSynth returns audio derived from the request text
type fakeSynth struct {
	mu       sync.Mutex
	reqs     []tts.Request
	err      error
	delay    time.Duration
	canceled chan struct{} // closed when a delayed call sees cancellation
}

func (f *fakeSynth) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			if f.canceled != nil {
				close(f.canceled)
			}
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := req.Normalize("").Validate(); err != nil {
		return nil, err
	}
	return &tts.Result{
		Audio:    []byte("audio:" + req.Text),
		MimeType: "audio/mpeg",
		CacheKey: "key-" + req.Text,
		CacheHit: req.Text == "cached",
	}, nil
}

type fakeVoices struct {
	voices []tts.Voice
	err    error
}

func (f *fakeVoices) Voices(ctx context.Context) ([]tts.Voice, error) {
	return f.voices, f.err
}

func newTestServer(t *testing.T, synth Synthesizer, voices VoiceSource, opts ...Option) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(synth, voices, zerolog.Nop(), opts...).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postTTS(t *testing.T, server *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/tts", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}

func TestSynthesize_Success(t *testing.T) {
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{})

	resp := postTTS(t, server, `{"text":"hello","voiceName":"en-US-Wavenet-D"}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if buf.String() != "audio:hello" {
		t.Errorf("Unexpected body %q", buf.String())
	}

	expected := map[string]string{
		"Content-Type":   "audio/mpeg",
		"Content-Length": "11",
		"Cache-Control":  "public, max-age=31536000, immutable",
		"X-Cache-Key":    "key-hello",
		"X-Cache-Hit":    "false",
	}
	for header, value := range expected {
		if got := resp.Header.Get(header); got != value {
			t.Errorf("%s: expected %q, got %q", header, value, got)
		}
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected a generated request ID")
	}
}

func TestSynthesize_CacheHitHeader(t *testing.T) {
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{})

	resp := postTTS(t, server, `{"text":"cached"}`)

	if resp.Header.Get("X-Cache-Hit") != "true" {
		t.Errorf("Expected X-Cache-Hit true, got %q", resp.Header.Get("X-Cache-Hit"))
	}
}

func TestSynthesize_RequestIDPropagated(t *testing.T) {
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{})

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/tts", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") != "req-123" {
		t.Errorf("Expected request ID echoed, got %q", resp.Header.Get("X-Request-ID"))
	}
}

func TestSynthesize_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		body         string
		status       int
		kind         string
		authRequired bool
	}{
		{
			name:   "malformed json",
			body:   `{"text":`,
			status: http.StatusBadRequest,
			kind:   "invalid-argument",
		},
		{
			name:   "validation",
			body:   `{"speakingRate":2}`,
			status: http.StatusBadRequest,
			kind:   "invalid-argument",
		},
		{
			name:         "credentials",
			err:          &tts.Error{Kind: tts.KindAuthRequired, Err: tts.ErrNoCredentials},
			status:       http.StatusUnauthorized,
			kind:         "auth-required",
			authRequired: true,
		},
		{
			name:   "rate limited",
			err:    &tts.ProviderError{StatusCode: 429, Code: codes.ResourceExhausted},
			status: http.StatusTooManyRequests,
			kind:   "rate-limited",
		},
		{
			name:   "internal",
			err:    errors.New("disk on fire"),
			status: http.StatusInternalServerError,
			kind:   "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, &fakeSynth{err: tt.err}, &fakeVoices{})
			body := tt.body
			if body == "" {
				body = `{"text":"hello"}`
			}

			resp := postTTS(t, server, body)

			if resp.StatusCode != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
			got := decodeError(t, resp)
			if got.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, got.Kind)
			}
			if got.AuthRequired != tt.authRequired {
				t.Errorf("Expected authRequired %v", tt.authRequired)
			}
			if tt.authRequired && got.HelpURL == "" {
				t.Error("Expected help URL for auth errors")
			}
			if got.RequestID == "" {
				t.Error("Expected request ID in error body")
			}
			if tt.kind == "internal" && strings.Contains(got.Message, "disk on fire") {
				t.Error("Expected internal error details not to leak")
			}
		})
	}
}

func TestSynthesize_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{})

	resp, err := http.Get(server.URL + "/api/tts")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestVoices(t *testing.T) {
	voices := []tts.Voice{
		{Name: "en-US-Standard-A", LanguageCode: "en-US", SSMLGender: "FEMALE", NaturalSampleRateHertz: 24000},
		{Name: "en-US-Wavenet-D", LanguageCode: "en-US", SSMLGender: "MALE", NaturalSampleRateHertz: 24000},
	}
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{voices: voices})

	resp, err := http.Get(server.URL + "/api/voices")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Cache-Control") != "public, max-age=3600" {
		t.Errorf("Unexpected Cache-Control %q", resp.Header.Get("Cache-Control"))
	}

	var body VoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Voices) != 2 || body.Voices[1].Name != "en-US-Wavenet-D" {
		t.Errorf("Unexpected body %+v", body)
	}
}

func TestVoices_AuthError(t *testing.T) {
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{err: fmt.Errorf("list: %w", tts.ErrNoCredentials)})

	resp, err := http.Get(server.URL + "/api/voices")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
	if !decodeError(t, resp).AuthRequired {
		t.Error("Expected authRequired")
	}
}

func TestCacheFiles(t *testing.T) {
	dir := t.TempDir()
	key := strings.Repeat("ab", 32)
	if err := os.WriteFile(filepath.Join(dir, key+".mp3"), []byte("mp3 bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{}, WithCacheFiles(dir))

	tests := []struct {
		path   string
		status int
	}{
		{"/tts-cache/" + key + ".mp3", http.StatusOK},
		{"/tts-cache/", http.StatusNotFound},
		{"/tts-cache/.hidden", http.StatusNotFound},
		{"/tts-cache/missing.mp3", http.StatusNotFound},
	}

	for _, tt := range tests {
		resp, err := http.Get(server.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.status, resp.StatusCode)
		}
		if tt.status == http.StatusOK && resp.Header.Get("Cache-Control") != "public, max-age=31536000, immutable" {
			t.Errorf("%s: expected immutable caching", tt.path)
		}
	}
}

func TestCacheFiles_DisabledByDefault(t *testing.T) {
	server := newTestServer(t, &fakeSynth{}, &fakeVoices{})

	resp, err := http.Get(server.URL + "/tts-cache/anything.mp3")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
