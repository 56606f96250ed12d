// Package metrics exposes Prometheus instrumentation for the resolver.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ytmirror"

var (
	backendAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_attempts_total",
		Help:      "Backend adapter attempts by backend and outcome (success, failure)",
	}, []string{"backend", "outcome"})

	backendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_attempt_seconds",
		Help:      "Backend adapter attempt latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"backend"})

	raceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "race_outcomes_total",
		Help:      "Parallel race results (won, exhausted, deadline)",
	}, []string{"outcome"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Resolution cache lookups by namespace and result (hit, miss, shared)",
	}, []string{"namespace", "result"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries evicted by the size cap",
	}, []string{"namespace"})

	proxyListRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proxy_list_refreshes_total",
		Help:      "Remote proxy list fetches by result (loaded, empty, error, cooldown)",
	}, []string{"result"})

	playerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "player_fallback_transitions_total",
		Help:      "Player fallback state machine transitions",
	}, []string{"from", "to"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route pattern and status code",
	}, []string{"route", "code"})
)

// RecordBackendAttempt records one adapter attempt.
func RecordBackendAttempt(backend string, ok bool, seconds float64) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	backendAttempts.WithLabelValues(backend, outcome).Inc()
	backendLatency.WithLabelValues(backend).Observe(seconds)
}

// RecordRace records a race outcome.
func RecordRace(outcome string) {
	raceOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup records a cache lookup.
func RecordCacheLookup(ns, result string) {
	cacheLookups.WithLabelValues(ns, result).Inc()
}

// RecordCacheEvictions adds n evicted entries.
func RecordCacheEvictions(ns string, n int) {
	if n <= 0 {
		return
	}
	cacheEvictions.WithLabelValues(ns).Add(float64(n))
}

// RecordProxyRefresh records a remote proxy list fetch.
func RecordProxyRefresh(result string) {
	proxyListRefreshes.WithLabelValues(result).Inc()
}

// RecordPlayerTransition records an automatic player switch.
func RecordPlayerTransition(from, to string) {
	playerTransitions.WithLabelValues(from, to).Inc()
}

// RecordHTTPRequest records one served API request.
func RecordHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
