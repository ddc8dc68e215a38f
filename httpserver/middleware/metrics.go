/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestMetricsLabelMethod       = "method"
	httpRequestMetricsLabelRoutePattern = "route_pattern"
	httpRequestMetricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets is default buckets into which observations of serving HTTP requests are counted.
var DefaultHTTPRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPRequestMetricsCollectorOpts represents an options for HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// DurationBuckets is a list of buckets into which observations of serving HTTP requests are counted.
	DurationBuckets []float64

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// HTTPRequestMetricsCollector represents collector of metrics for incoming HTTP requests.
type HTTPRequestMetricsCollector struct {
	Durations *prometheus.HistogramVec
	InFlight  *prometheus.GaugeVec
}

// NewHTTPRequestMetricsCollector creates a new metrics collector.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts is a more configurable version of creating HTTPRequestMetricsCollector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	durBuckets := opts.DurationBuckets
	if durBuckets == nil {
		durBuckets = DefaultHTTPRequestDurationBuckets
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   opts.Namespace,
				Name:        "http_request_duration_seconds",
				Help:        "A histogram of the HTTP request durations.",
				Buckets:     durBuckets,
				ConstLabels: opts.ConstLabels,
			},
			[]string{httpRequestMetricsLabelMethod, httpRequestMetricsLabelRoutePattern, httpRequestMetricsLabelStatusCode},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   opts.Namespace,
				Name:        "http_requests_in_flight",
				Help:        "Current number of HTTP requests being served.",
				ConstLabels: opts.ConstLabels,
			},
			[]string{httpRequestMetricsLabelMethod, httpRequestMetricsLabelRoutePattern},
		),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *HTTPRequestMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Durations, c.InFlight)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *HTTPRequestMetricsCollector) Unregister() {
	prometheus.Unregister(c.InFlight)
	prometheus.Unregister(c.Durations)
}

// HTTPRequestMetricsOpts represents an options for HTTPRequestMetrics middleware.
type HTTPRequestMetricsOpts struct {
	ExcludedEndpoints []string
}

type httpRequestMetricsHandler struct {
	next      http.Handler
	collector *HTTPRequestMetricsCollector
	opts      HTTPRequestMetricsOpts
}

// HTTPRequestMetrics is a middleware that collects metrics for incoming HTTP requests using Prometheus data types.
func HTTPRequestMetrics(collector *HTTPRequestMetricsCollector) func(next http.Handler) http.Handler {
	return HTTPRequestMetricsWithOpts(collector, HTTPRequestMetricsOpts{})
}

// HTTPRequestMetricsWithOpts is a more configurable version of HTTPRequestMetrics middleware.
func HTTPRequestMetricsWithOpts(
	collector *HTTPRequestMetricsCollector, opts HTTPRequestMetricsOpts,
) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &httpRequestMetricsHandler{next: next, collector: collector, opts: opts}
	}
}

func (h *httpRequestMetricsHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	for i := range h.opts.ExcludedEndpoints {
		if r.URL.Path == h.opts.ExcludedEndpoints[i] {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	startTime := GetRequestStartTimeFromContext(r.Context())
	if startTime.IsZero() {
		startTime = time.Now()
		r = r.WithContext(NewContextWithRequestStartTime(r.Context(), startTime))
	}

	inFlightGauge := h.collector.InFlight.With(prometheus.Labels{
		httpRequestMetricsLabelMethod:       r.Method,
		httpRequestMetricsLabelRoutePattern: getChiRoutePattern(r),
	})
	inFlightGauge.Inc()
	defer inFlightGauge.Dec()

	wrw := wrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	defer func() {
		// The route pattern is resolved by chi during routing, so it is read after the handler ran.
		labels := prometheus.Labels{
			httpRequestMetricsLabelMethod:       r.Method,
			httpRequestMetricsLabelRoutePattern: getChiRoutePattern(r),
		}
		if p := recover(); p != nil {
			if p != http.ErrAbortHandler {
				labels[httpRequestMetricsLabelStatusCode] = strconv.Itoa(http.StatusInternalServerError)
				h.collector.Durations.With(labels).Observe(time.Since(startTime).Seconds())
			}
			panic(p)
		}
		labels[httpRequestMetricsLabelStatusCode] = strconv.Itoa(wrw.Status())
		h.collector.Durations.With(labels).Observe(time.Since(startTime).Seconds())
	}()

	h.next.ServeHTTP(wrw, r)
}

func getChiRoutePattern(r *http.Request) string {
	chiCtx := chi.RouteContext(r.Context())
	if chiCtx == nil {
		return ""
	}
	return chiCtx.RoutePattern()
}
