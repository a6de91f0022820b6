// Package metrics exposes Prometheus metrics for the HTTP layer and the
// resource store.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/labtrack/lims/pkg/common/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ValidationFailures *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	Mutations          *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers the collectors on a fresh registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_http_requests_total",
			Help: "HTTP requests partitioned by route template, method and status code.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lims_http_request_duration_seconds",
			Help:    "HTTP request latency partitioned by route template and method.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"route", "method"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_validation_failures_total",
			Help: "Rejected payloads partitioned by resource and field.",
		}, []string{"resource", "field"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_store_errors_total",
			Help: "Store failures partitioned by operation.",
		}, []string{"op"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_mutations_total",
			Help: "Committed writes partitioned by resource and action.",
		}, []string{"resource", "action"}),
	}

	for _, c := range []prometheus.Collector{
		m.RequestTotal, m.RequestDuration, m.ValidationFailures, m.StoreErrors, m.Mutations,
		prometheus.NewGoCollector(),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveValidationFailure(resource, field string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(resource, field).Inc()
}

func (m *Metrics) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveMutation(resource, action string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(resource, action).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the mux route
// template so ids do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := middleware.NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.RequestTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.Status)).Inc()
		m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
