package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Core request/hit/miss counters
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of cache requests",
		},
		[]string{"endpoint"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"endpoint", "level"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"endpoint"},
	)

	CacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_sets_total",
			Help: "Total number of stored responses",
		},
		[]string{"level"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Cache level failures treated as misses",
		},
		[]string{"level", "kind"}, // kind: encode, decode, upstream
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidated_keys_total",
			Help: "Keys removed by pattern invalidation",
		},
		[]string{"level"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "level"},
	)

	// L1 capacity metrics only (bigcache is the only sized level)
	CacheCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_capacity_bytes",
			Help: "L1 cache capacity in bytes",
		},
		[]string{"level"},
	)

	CacheUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_used_bytes",
			Help: "L1 cache used space in bytes",
		},
		[]string{"level"},
	)

	CacheKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_keys",
			Help: "Number of keys held by a cache level",
		},
		[]string{"level"},
	)

	// In-flight request deduplication
	InflightCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inflight_calls_total",
			Help: "Deduplicated read calls by role",
		},
		[]string{"endpoint", "role"}, // role: leader, shared
	)

	InflightActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inflight_active_operations",
			Help: "Shared read operations currently unresolved",
		},
	)

	// Transport
	TransportAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_attempts_total",
			Help: "HTTP attempts by outcome",
		},
		[]string{"method", "endpoint", "outcome"}, // outcome: success, client_error, server_error, rate_limited, network, cancelled
	)

	TransportRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_retries_total",
			Help: "Retries scheduled after a transient failure",
		},
		[]string{"method", "endpoint"},
	)

	TransportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transport_request_duration_seconds",
			Help:    "Duration of a full request including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Cancellation registry
	RequestsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_cancelled_total",
			Help: "Outstanding requests cancelled by reason",
		},
		[]string{"reason"}, // reason: key, prefix, all, superseded
	)

	OutstandingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "requests_outstanding",
			Help: "Requests currently registered for cancellation",
		},
	)

	// Search orchestrator
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Searches issued by trigger",
		},
		[]string{"trigger"}, // trigger: submit, debounce, refresh
	)

	SearchResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_responses_total",
			Help: "Search responses by outcome",
		},
		[]string{"outcome"}, // outcome: applied, stale, cancelled, error, empty
	)

	// Interaction coordinator
	InteractionActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interaction_actions_total",
			Help: "Optimistic actions by outcome",
		},
		[]string{"action", "outcome"}, // outcome: confirmed, reverted, cancelled, ignored, rejected
	)

	// Credential tokens
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Token fetches by outcome",
		},
		[]string{"token", "outcome"},
	)
)

var (
	allowedEndpoints   = make(map[string]bool)
	allowedEndpointsMu sync.RWMutex
)

// InitializeAllowedEndpoints sets the endpoints kept as metric labels.
// Anything else is reported as "other" to keep label cardinality bounded.
func InitializeAllowedEndpoints(endpoints []string) {
	allowedEndpointsMu.Lock()
	defer allowedEndpointsMu.Unlock()

	allowedEndpoints = make(map[string]bool, len(endpoints))
	for _, e := range endpoints {
		allowedEndpoints[strings.Trim(e, "/")] = true
	}
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return "unknown"
	}

	allowedEndpointsMu.RLock()
	defer allowedEndpointsMu.RUnlock()

	if allowedEndpoints[endpoint] {
		return endpoint
	}
	return "other"
}

// RecordCacheRequest records a cache request
func RecordCacheRequest(endpoint string) {
	CacheRequests.WithLabelValues(normalizeEndpoint(endpoint)).Inc()
}

// RecordCacheHit records a cache hit served by level
func RecordCacheHit(endpoint string, level string) {
	CacheHits.WithLabelValues(normalizeEndpoint(endpoint), strings.ToLower(level)).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(endpoint string) {
	CacheMisses.WithLabelValues(normalizeEndpoint(endpoint)).Inc()
}

// RecordCacheSet records a stored response
func RecordCacheSet(level string) {
	CacheSets.WithLabelValues(level).Inc()
}

// RecordCacheError records a cache level failure
func RecordCacheError(level, kind string) {
	CacheErrors.WithLabelValues(level, kind).Inc()
}

// RecordCacheInvalidation records keys removed by a pattern
func RecordCacheInvalidation(level string, removed int) {
	CacheInvalidations.WithLabelValues(level).Add(float64(removed))
}

// UpdateL1CacheCapacity updates L1 cache capacity metrics only
func UpdateL1CacheCapacity(capacity, used int64) {
	CacheCapacity.WithLabelValues("l1").Set(float64(capacity))
	CacheUsed.WithLabelValues("l1").Set(float64(used))
}

// UpdateCacheKeys sets the key count of a level
func UpdateCacheKeys(level string, count int64) {
	CacheKeys.WithLabelValues(level).Set(float64(count))
}

// TimeCacheOperation returns a timer function for measuring a cache operation
func TimeCacheOperation(operation, level string) func() {
	timer := prometheus.NewTimer(CacheOperationDuration.WithLabelValues(operation, level))
	return func() {
		timer.ObserveDuration()
	}
}

// RecordInflightCall records whether a read started a shared call or joined one
func RecordInflightCall(endpoint string, shared bool) {
	role := "leader"
	if shared {
		role = "shared"
	}
	InflightCalls.WithLabelValues(normalizeEndpoint(endpoint), role).Inc()
}

// RecordTransportAttempt records the outcome of one HTTP attempt
func RecordTransportAttempt(method, endpoint, outcome string) {
	TransportAttempts.WithLabelValues(method, normalizeEndpoint(endpoint), outcome).Inc()
}

// RecordTransportRetry records a scheduled retry
func RecordTransportRetry(method, endpoint string) {
	TransportRetries.WithLabelValues(method, normalizeEndpoint(endpoint)).Inc()
}

// ObserveTransportDuration records the duration of a whole request
func ObserveTransportDuration(method, endpoint string, d time.Duration) {
	TransportDuration.WithLabelValues(method, normalizeEndpoint(endpoint)).Observe(d.Seconds())
}

// RecordCancellations records cancelled requests
func RecordCancellations(reason string, count int) {
	if count <= 0 {
		return
	}
	RequestsCancelled.WithLabelValues(reason).Add(float64(count))
}

// RecordSearchRequest records an issued search
func RecordSearchRequest(trigger string) {
	SearchRequests.WithLabelValues(trigger).Inc()
}

// RecordSearchResponse records how a search response was handled
func RecordSearchResponse(outcome string) {
	SearchResponses.WithLabelValues(outcome).Inc()
}

// RecordInteraction records the outcome of an optimistic action
func RecordInteraction(action, outcome string) {
	InteractionActions.WithLabelValues(action, outcome).Inc()
}

// RecordTokenRefresh records a token fetch
func RecordTokenRefresh(token string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	TokenRefreshes.WithLabelValues(token, outcome).Inc()
}
