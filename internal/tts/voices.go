package tts

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lexiqai/tts-gateway/internal/resilience"
)

const (
	defaultSSMLGender      = "NEUTRAL"
	defaultSampleRateHertz = 24000
)

// Journey voices have bare single-word names ("Achernar") and are not
// generally accessible through the v1 API.
var journeyVoiceName = regexp.MustCompile(`^[A-Z][a-z]+$`)

// VoiceLister lists provider voices
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// VoiceCatalog serves the filtered provider voice list, refreshed after ttl
type VoiceCatalog struct {
	lister VoiceLister
	ttl    time.Duration
	retry  *resilience.RetryConfig
	logger zerolog.Logger
	now    func() time.Time

	refresh   singleflight.Group
	mu        sync.Mutex
	voices    []Voice
	fetchedAt time.Time
}

// NewVoiceCatalog creates a catalog. A ttl of zero disables caching.
func NewVoiceCatalog(lister VoiceLister, ttl time.Duration, retry *resilience.RetryConfig, logger zerolog.Logger) *VoiceCatalog {
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &VoiceCatalog{
		lister: lister,
		ttl:    ttl,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// Voices returns the cached list, fetching it when missing or stale.
// Concurrent callers share one fetch, and a fresh list is served without
// waiting on it.
func (c *VoiceCatalog) Voices(ctx context.Context) ([]Voice, error) {
	if voices, ok := c.cached(); ok {
		return voices, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	flight := c.refresh.DoChan("voices", func() (interface{}, error) {
		return c.fetch(fetchCtx)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Voice), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *VoiceCatalog) cached() ([]Voice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.voices != nil && c.ttl > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.voices, true
	}
	return nil, false
}

func (c *VoiceCatalog) fetch(ctx context.Context) ([]Voice, error) {
	// A fetch may have finished between the lookup and joining the flight
	if voices, ok := c.cached(); ok {
		return voices, nil
	}

	raw, err := resilience.Do(ctx, c.retry, IsRetryable, func(ctx context.Context, attempt int) ([]Voice, error) {
		return c.lister.ListVoices(ctx)
	})
	if err != nil {
		return nil, classify("list voices", err)
	}

	voices := FilterVoices(raw)
	c.mu.Lock()
	c.voices = voices
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Info().Int("voices", len(voices)).Int("fetched", len(raw)).Msg("Voice list refreshed")
	return voices, nil
}

// FilterVoices drops unusable entries, fills display defaults and sorts by
// language code, then name.
func FilterVoices(raw []Voice) []Voice {
	voices := make([]Voice, 0, len(raw))
	for _, v := range raw {
		if v.Name == "" || v.LanguageCode == "" || journeyVoiceName.MatchString(v.Name) {
			continue
		}
		if v.SSMLGender == "" {
			v.SSMLGender = defaultSSMLGender
		}
		if v.NaturalSampleRateHertz == 0 {
			v.NaturalSampleRateHertz = defaultSampleRateHertz
		}
		voices = append(voices, v)
	}

	sort.Slice(voices, func(i, j int) bool {
		if voices[i].LanguageCode != voices[j].LanguageCode {
			return voices[i].LanguageCode < voices[j].LanguageCode
		}
		return voices[i].Name < voices[j].Name
	})
	return voices
}
