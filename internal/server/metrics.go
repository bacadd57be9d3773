package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RefreshesTotal      *prometheus.CounterVec
	DriftEventsTotal    prometheus.Counter
	DriftChangesTotal   prometheus.Counter
	LastDriftTimestamp  prometheus.Gauge
}

// NewMetrics registers the server collectors on reg. When cache is non-nil
// its hit and miss counters are exported as well.
func NewMetrics(reg *prometheus.Registry, cache *catalog.Cached) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewgraph_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "viewgraph_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RefreshesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewgraph_refreshes_total",
			Help: "Lineage cache resets by reason",
		}, []string{"reason"}),
		DriftEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "viewgraph_drift_events_total",
			Help: "Snapshots that differed from the previous one",
		}),
		DriftChangesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "viewgraph_drift_changes_total",
			Help: "Objects added or removed across all drift events",
		}),
		LastDriftTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "viewgraph_last_drift_timestamp_seconds",
			Help: "Unix time of the last drift event",
		}),
	}

	if cache != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Name: "viewgraph_catalog_cache_hits_total",
			Help: "Catalog lookups answered from cache",
		}, func() float64 { return float64(cache.Stats().Hits) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Name: "viewgraph_catalog_cache_misses_total",
			Help: "Catalog lookups that went to the database",
		}, func() float64 { return float64(cache.Stats().Misses) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "viewgraph_catalog_cache_entries",
			Help: "Live catalog cache entries",
		}, func() float64 { return float64(cache.Stats().Entries) })
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latencies by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
