package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_synthesis_requests_total",
		Help: "Total number of synthesis requests by outcome",
	}, []string{"status"}) // status: success, invalid-argument, auth-required, rate-limited, internal

	synthesisLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tts_gateway_synthesis_latency_seconds",
		Help:    "End-to-end synthesis latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"cache"}) // cache: hit, miss

	chunksPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_chunks_per_request",
		Help:    "Number of provider chunks per synthesized request",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	})

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_audio_bytes_total",
		Help: "Total audio bytes returned",
	}, []string{"source"}) // source: cache, provider

	// Provider metrics
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_provider_calls_total",
		Help: "Total number of provider calls",
	}, []string{"status"})

	providerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_provider_latency_seconds",
		Help:    "Provider call latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	providerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_provider_retries_total",
		Help: "Total number of provider call retries",
	})

	// Cache metrics
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"}) // result: hit, miss

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_gateway_cache_entries",
		Help: "Entries in the in-memory cache tier",
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_cache_evictions_total",
		Help: "Entries evicted from the in-memory cache tier",
	})

	cacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_cache_write_failures_total",
		Help: "Failed writes to the persistent cache tier",
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tts_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// RequestMetrics tracks metrics for a single synthesis request
type RequestMetrics struct {
	RequestID string
	startTime time.Time
}

// NewRequestMetrics creates a new metrics tracker for a request
func NewRequestMetrics(requestID string) *RequestMetrics {
	return &RequestMetrics{
		RequestID: requestID,
		startTime: time.Now(),
	}
}

// RecordEnd records the outcome of the request
func (m *RequestMetrics) RecordEnd(status string, cacheHit bool, bytes int) {
	cache := "miss"
	source := "provider"
	if cacheHit {
		cache = "hit"
		source = "cache"
	}

	synthesisRequests.WithLabelValues(status).Inc()
	synthesisLatency.WithLabelValues(cache).Observe(time.Since(m.startTime).Seconds())
	if bytes > 0 {
		audioBytes.WithLabelValues(source).Add(float64(bytes))
	}
}

// RecordChunks records how many chunks a request was split into
func (m *RequestMetrics) RecordChunks(n int) {
	chunksPerRequest.Observe(float64(n))
}

// RecordProviderCall records one provider call attempt
func RecordProviderCall(status string, latency time.Duration) {
	providerCalls.WithLabelValues(status).Inc()
	providerLatency.Observe(latency.Seconds())
}

// RecordProviderRetry records a retry of a provider call
func RecordProviderRetry() {
	providerRetries.Inc()
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// SetCacheEntries updates the in-memory tier size gauge
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// RecordCacheEviction records an LRU eviction
func RecordCacheEviction() {
	cacheEvictions.Inc()
}

// RecordCacheWriteFailure records a failed persistent tier write
func RecordCacheWriteFailure() {
	cacheWriteFailures.Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
