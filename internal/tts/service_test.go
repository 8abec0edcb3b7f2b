package tts

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mapCache keeps audio in a map; metadataOnly mimics the memory backend
type mapCache struct {
	mu           sync.Mutex
	entries      map[string][]byte
	mimeTypes    map[string]string
	metadataOnly bool
	sets         int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]byte{}, mimeTypes: map[string]string{}}
}

func (c *mapCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.mimeTypes[key]
	return ok
}

func (c *mapCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metadataOnly {
		return nil, false
	}
	data, ok := c.entries[key]
	return data, ok
}

func (c *mapCache) Set(key string, data []byte, mimeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.mimeTypes[key] = mimeType
	if !c.metadataOnly {
		c.entries[key] = data
	}
}

func newTestService(provider Provider, cache AudioCache) *Service {
	client := NewClient(provider, WithRetryConfig(testRetryConfig(4, &recordedSleeps{})))
	return NewService(client, cache, ServiceConfig{}, zerolog.Nop())
}

func TestService_CacheHit(t *testing.T) {
	provider := &fakeProvider{}
	cache := newMapCache()
	svc := newTestService(provider, cache)
	req := Request{Text: "Hello world", VoiceName: "en-US-Wavenet-D"}

	first, err := svc.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if first.CacheHit {
		t.Error("Expected first request to miss")
	}
	if first.MimeType != "audio/mpeg" {
		t.Errorf("Expected audio/mpeg, got %s", first.MimeType)
	}

	second, err := svc.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !second.CacheHit {
		t.Error("Expected second request to hit")
	}
	if string(second.Audio) != string(first.Audio) {
		t.Error("Expected identical audio from cache")
	}
	if second.CacheKey != first.CacheKey {
		t.Errorf("Expected same key, got %s and %s", first.CacheKey, second.CacheKey)
	}
	if provider.calls() != 1 {
		t.Errorf("Expected 1 provider call, got %d", provider.calls())
	}
}

func TestService_DefaultsShareCacheEntry(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, newMapCache())

	if _, err := svc.Synthesize(context.Background(), Request{Text: "Hello"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	res, err := svc.Synthesize(context.Background(), Request{
		Text:          "Hello",
		LanguageCode:  "en-US",
		AudioEncoding: "mp3",
		SpeakingRate:  1.0,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !res.CacheHit {
		t.Error("Expected explicit defaults to hit the entry written for omitted defaults")
	}
}

func TestService_MultiChunkRequest(t *testing.T) {
	provider := &fakeProvider{}
	cache := newMapCache()
	svc := newTestService(provider, cache)
	text := strings.Repeat("This is a test sentence. ", 480)

	res, err := svc.Synthesize(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if provider.calls() < 3 {
		t.Errorf("Expected at least 3 provider calls, got %d", provider.calls())
	}

	// The fake echoes each chunk, so the audio is the chunks back to back
	var expected strings.Builder
	for _, r := range provider.requests {
		if len(r.Input) > MaxChunkBytes {
			t.Errorf("Chunk exceeds budget: %d bytes", len(r.Input))
		}
		expected.WriteString(r.Input)
	}
	if string(res.Audio) != expected.String() {
		t.Error("Expected assembled audio in chunk order")
	}
	if cache.sets != 1 {
		t.Errorf("Expected one cache write, got %d", cache.sets)
	}
}

func TestService_SingleChunkRequest(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, newMapCache())
	text := strings.Repeat("Hello world. ", 230)

	res, err := svc.Synthesize(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if provider.calls() != 1 {
		t.Errorf("Expected 1 provider call, got %d", provider.calls())
	}
	if string(res.Audio) != text {
		t.Error("Expected audio for the whole text")
	}
}

func TestService_MemoryOnlyAlwaysSynthesizes(t *testing.T) {
	provider := &fakeProvider{}
	cache := newMapCache()
	cache.metadataOnly = true
	svc := newTestService(provider, cache)
	req := Request{Text: "Hello"}

	for i := 0; i < 2; i++ {
		res, err := svc.Synthesize(context.Background(), req)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.CacheHit {
			t.Error("Expected no hit without stored audio")
		}
	}
	if provider.calls() != 2 {
		t.Errorf("Expected 2 provider calls, got %d", provider.calls())
	}
}

func TestService_ValidationErrorSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	cache := newMapCache()
	svc := newTestService(provider, cache)

	_, err := svc.Synthesize(context.Background(), Request{Text: "Hi", SpeakingRate: 10})
	if KindOf(err) != KindInvalidArgument {
		t.Errorf("Expected invalid-argument, got %v", err)
	}
	if provider.calls() != 0 || cache.sets != 0 {
		t.Error("Expected no provider call or cache write")
	}
}

func TestService_FailureNotCached(t *testing.T) {
	provider := &fakeProvider{respond: func(int, SpeechRequest) ([]byte, error) {
		return nil, errBadInput
	}}
	cache := newMapCache()
	svc := newTestService(provider, cache)

	if _, err := svc.Synthesize(context.Background(), Request{Text: "Hello"}); err == nil {
		t.Fatal("Expected error")
	}
	if cache.sets != 0 {
		t.Errorf("Expected failed synthesis not to be cached, got %d writes", cache.sets)
	}
}

func TestService_ConcurrentMissesShareSynthesis(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{respond: func(call int, req SpeechRequest) ([]byte, error) {
		<-release
		return []byte(req.Input), nil
	}}
	svc := newTestService(provider, newMapCache())

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Synthesize(context.Background(), Request{Text: "Hello"})
			errs <- err
		}()
	}

	// Let the first caller reach the provider before releasing it
	for provider.calls() == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	}
	// Late arrivals may find the finished entry or join the flight; none
	// should trigger a second synthesis.
	if provider.calls() != 1 {
		t.Errorf("Expected 1 provider call, got %d", provider.calls())
	}
}

func TestService_BlankSSMLTreatedAsText(t *testing.T) {
	provider := &fakeProvider{}
	cache := newMapCache()
	svc := newTestService(provider, cache)

	res, err := svc.Synthesize(context.Background(), Request{Text: "Hello world", SSML: "   "})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(res.Audio) != "Hello world" {
		t.Errorf("Expected the text to be spoken, got %q", res.Audio)
	}
	if sent := provider.requests[0]; sent.Input != "Hello world" || sent.SSML {
		t.Errorf("Expected plain text sent to the provider, got %q ssml=%v", sent.Input, sent.SSML)
	}

	plain, err := svc.Synthesize(context.Background(), Request{Text: "Hello world"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if plain.CacheKey != res.CacheKey || !plain.CacheHit {
		t.Errorf("Expected the text-only request to hit the same entry, keys %s and %s", res.CacheKey, plain.CacheKey)
	}
}

func TestService_CanceledCallerDoesNotFailJoiners(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider := &fakeProvider{respond: func(call int, req SpeechRequest) ([]byte, error) {
		once.Do(func() { close(started) })
		<-release
		return []byte(req.Input), nil
	}}
	svc := NewService(
		NewClient(provider, WithRetryConfig(testRetryConfig(4, &recordedSleeps{}))),
		newMapCache(),
		ServiceConfig{MaxChunkBytes: 5},
		zerolog.Nop(),
	)
	req := Request{Text: "One. Two."}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Synthesize(leaderCtx, req)
		leaderErr <- err
	}()
	<-started

	joined := make(chan *Result, 1)
	joinerErr := make(chan error, 1)
	go func() {
		res, err := svc.Synthesize(context.Background(), req)
		joined <- res
		joinerErr <- err
	}()

	cancelLeader()
	select {
	case err := <-leaderErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected the canceled caller to see context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Canceled caller did not return")
	}

	close(release)
	select {
	case res := <-joined:
		if err := <-joinerErr; err != nil {
			t.Fatalf("Expected joiner to succeed, got %v", err)
		}
		if string(res.Audio) != "One.Two." {
			t.Errorf("Expected both chunks, got %q", res.Audio)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Joiner did not return")
	}
	if provider.calls() != 2 {
		t.Errorf("Expected one synthesis of 2 chunks, got %d provider calls", provider.calls())
	}
}
