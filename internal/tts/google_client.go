package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"

	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/resilience"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleClient implements Provider using the Google Cloud Text-to-Speech REST API
type GoogleClient struct {
	apiURL      string
	apiKey      string
	project     string
	tokenSource oauth2.TokenSource
	credErr     error
	timeout     time.Duration
	limiter     *rate.Limiter
	httpClient  *http.Client
	logger      zerolog.Logger
}

// googleSynthRequest is the text:synthesize payload
type googleSynthRequest struct {
	Input       googleSynthInput       `json:"input"`
	Voice       googleSynthVoice       `json:"voice"`
	AudioConfig googleSynthAudioConfig `json:"audioConfig"`
}

type googleSynthInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type googleSynthVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleSynthAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
	Pitch         float64 `json:"pitch"`
	VolumeGainDb  float64 `json:"volumeGainDb"`
}

type googleSynthResponse struct {
	AudioContent string `json:"audioContent"` // base64-encoded
}

type googleVoicesResponse struct {
	Voices []struct {
		LanguageCodes          []string `json:"languageCodes"`
		Name                   string   `json:"name"`
		SSMLGender             string   `json:"ssmlGender"`
		NaturalSampleRateHertz int      `json:"naturalSampleRateHertz"`
	} `json:"voices"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int        `json:"code"`
		Message string     `json:"message"`
		Status  codes.Code `json:"status"`
	} `json:"error"`
}

// NewGoogleClient creates a provider client. Credential resolution failures
// are not fatal here; they surface as auth-required errors on use so the
// service can still start and serve cached audio.
func NewGoogleClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *GoogleClient {
	limit := rate.Inf
	if cfg.TTSRateLimit > 0 {
		limit = rate.Limit(cfg.TTSRateLimit)
	}

	c := &GoogleClient{
		apiURL:     strings.TrimRight(cfg.TTSAPIURL, "/"),
		apiKey:     cfg.GoogleAPIKey,
		project:    cfg.GoogleCloudProject,
		timeout:    cfg.RequestTimeout(),
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{},
		logger:     logger,
	}

	switch {
	case c.apiKey != "":
		logger.Info().Msg("Using Google API key")
	case cfg.GoogleCredentialsJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.GoogleCredentialsJSON), cloudPlatformScope)
		if err != nil {
			c.credErr = fmt.Errorf("%w: invalid GOOGLE_APPLICATION_CREDENTIALS_JSON: %v", ErrNoCredentials, err)
			break
		}
		c.tokenSource = oauth2.ReuseTokenSource(nil, creds.TokenSource)
		if c.project == "" {
			c.project = creds.ProjectID
		}
		logger.Info().Msg("Using Google credentials from JSON environment variable")
	default:
		ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			c.credErr = fmt.Errorf("%w: %v", ErrNoCredentials, err)
			break
		}
		c.tokenSource = ts
		logger.Info().Msg("Using Application Default Credentials")
	}

	if c.credErr != nil {
		logger.Warn().Err(c.credErr).Msg("Google credentials not available, synthesis will fail until configured")
	}
	return c
}

// SynthesizeSpeech performs one text:synthesize call
func (c *GoogleClient) SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	body := googleSynthRequest{
		Voice: googleSynthVoice{
			LanguageCode: req.Params.LanguageCode,
			Name:         req.Params.VoiceName,
		},
		AudioConfig: googleSynthAudioConfig{
			AudioEncoding: string(req.Params.AudioEncoding),
			SpeakingRate:  req.Params.SpeakingRate,
			Pitch:         req.Params.Pitch,
			VolumeGainDb:  req.Params.VolumeGainDb,
		},
	}
	if req.SSML {
		body.Input.SSML = req.Input
	} else {
		body.Input.Text = req.Input
	}

	var resp googleSynthResponse
	if err := c.do(ctx, http.MethodPost, "/text:synthesize", body, &resp); err != nil {
		return nil, err
	}
	if resp.AudioContent == "" {
		return nil, fmt.Errorf("no audio content in response")
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	return audio, nil
}

// ListVoices fetches every voice the provider offers
func (c *GoogleClient) ListVoices(ctx context.Context) ([]Voice, error) {
	var resp googleVoicesResponse
	if err := c.do(ctx, http.MethodGet, "/voices", nil, &resp); err != nil {
		return nil, err
	}

	voices := make([]Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voice := Voice{
			Name:                   v.Name,
			SSMLGender:             v.SSMLGender,
			NaturalSampleRateHertz: v.NaturalSampleRateHertz,
		}
		if len(v.LanguageCodes) > 0 {
			voice.LanguageCode = v.LanguageCodes[0]
		}
		voices = append(voices, voice)
	}
	return voices, nil
}

// CheckCredentials reports whether a credential can be attached to requests
func (c *GoogleClient) CheckCredentials(ctx context.Context) (bool, error) {
	if c.apiKey != "" {
		return true, nil
	}
	if c.credErr != nil {
		return false, c.credErr
	}
	if _, err := c.tokenSource.Token(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	return true, nil
}

func (c *GoogleClient) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures are transient; cancellation is still recognised
		// through the wrapped error.
		return resilience.NewRetryableError(fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseProviderError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *GoogleClient) authorize(req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", c.apiKey)
		return nil
	}
	if c.credErr != nil {
		return c.credErr
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	token.SetAuthHeader(req)
	if c.project != "" {
		req.Header.Set("X-Goog-User-Project", c.project)
	}
	return nil
}

// parseProviderError turns a non-2xx response into a *ProviderError
func parseProviderError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	perr := &ProviderError{
		StatusCode: resp.StatusCode,
		Code:       codes.Unknown,
		Message:    strings.TrimSpace(string(raw)),
	}

	var body googleErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		perr.Message = body.Error.Message
		perr.Code = body.Error.Status
	}
	return perr
}
