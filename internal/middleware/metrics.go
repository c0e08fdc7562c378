package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upstream metrics
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sakura_upstream_requests_total",
		Help: "Total number of requests sent to SakuraFM",
	}, []string{"operation", "status"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sakura_upstream_request_duration_seconds",
		Help:    "Duration of requests sent to SakuraFM",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Gateway metrics
	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sakura_gateway_requests_total",
		Help: "Total number of gateway requests",
	}, []string{"route", "method", "status"})

	gatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sakura_gateway_request_duration_seconds",
		Help:    "Duration of gateway requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// Login metrics
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sakura_logins_total",
		Help: "Total number of login outcomes",
	}, []string{"result"})

	// Cache metrics
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sakura_cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"kind"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sakura_cache_misses_total",
		Help: "Total number of cache misses",
	}, []string{"kind"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sakura_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"route"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveRequest records one upstream request. It satisfies sakura.Observer.
func (m *Metrics) ObserveRequest(operation string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	upstreamRequests.WithLabelValues(operation, status).Inc()
	upstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGatewayRequest records a served gateway request
func (m *Metrics) RecordGatewayRequest(route, method string, status int, duration time.Duration) {
	gatewayRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	gatewayDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordLogin records a login outcome: sent, pending, completed or failed
func (m *Metrics) RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(kind string) {
	cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(kind string) {
	cacheMisses.WithLabelValues(kind).Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded(route string) {
	rateLimitExceeded.WithLabelValues(route).Inc()
}

// Instrument records every request that passes through the router.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.RecordGatewayRequest(RouteName(r), r.Method, rec.status, time.Since(start))
	})
}

// RouteName returns the matched route template, so ids do not explode label
// cardinality.
func RouteName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Handler exposes the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts a dedicated metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
