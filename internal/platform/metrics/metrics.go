package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/enrichment"
)

const namespace = "shopmesh"

// Recorder owns the API's Prometheus collectors. Each Recorder has its own registry so tests
// can create instances without clashing on global registration.
type Recorder struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchIDs      *prometheus.CounterVec
	placements    *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latencyMS     *prometheus.HistogramVec
}

// NewRecorder registers all collectors, including Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "bulk_fetches_total",
			Help:      "Bulk lookups against owning services by entity type and outcome.",
		}, []string{"entity", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "bulk_fetch_duration_seconds",
			Help:      "Latency of bulk lookups.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"entity"}),
		fetchIDs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "bulk_fetch_ids_total",
			Help:      "Identifiers requested and resolved by bulk lookups.",
		}, []string{"entity", "result"}),
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placements_total",
			Help:      "Order placement attempts by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		latencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.fetches,
		r.fetchDuration,
		r.fetchIDs,
		r.placements,
		r.requests,
		r.latencyMS,
	)
	return r
}

// ObserveFetch implements enrichment.Observer.
func (r *Recorder) ObserveFetch(entity domain.EntityType, requested, resolved int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	label := string(entity)
	r.fetches.WithLabelValues(label, fetchOutcome(err)).Inc()
	r.fetchDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	r.fetchIDs.WithLabelValues(label, "requested").Add(float64(requested))
	r.fetchIDs.WithLabelValues(label, "resolved").Add(float64(resolved))
}

// RecordPlacement counts an order placement outcome.
func (r *Recorder) RecordPlacement(outcome string) {
	if r == nil {
		return
	}
	r.placements.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency labelled by the chi route pattern, which keeps
// label cardinality bounded regardless of path parameters.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.latencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func fetchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

var _ enrichment.Observer = (*Recorder)(nil)
