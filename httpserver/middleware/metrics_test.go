/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	dialtest "github.com/dialcoach/dialcoach/testutil"
)

func TestHTTPRequestMetrics(t *testing.T) {
	newRouter := func(collector *HTTPRequestMetricsCollector, opts HTTPRequestMetricsOpts) *chi.Mux {
		router := chi.NewRouter()
		router.Use(HTTPRequestMetricsWithOpts(collector, opts))
		router.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusOK)
		})
		router.Get("/api/dialcoach/v1/recordings/{id}", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(http.StatusOK)
		})
		router.Get("/boom", func(rw http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		return router
	}

	durationsHist := func(collector *HTTPRequestMetricsCollector, method, routePattern, statusCode string) prometheus.Histogram {
		return collector.Durations.With(prometheus.Labels{
			"method":        method,
			"route_pattern": routePattern,
			"status_code":   statusCode,
		}).(prometheus.Histogram)
	}

	t.Run("request durations are observed with chi route pattern labels", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		router := newRouter(collector, HTTPRequestMetricsOpts{})

		for i := 0; i < 3; i++ {
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/dialcoach/v1/recordings/rec-1", nil))
			require.Equal(t, http.StatusOK, resp.Code)
		}

		hist := durationsHist(collector, http.MethodGet, "/api/dialcoach/v1/recordings/{id}", "200")
		dialtest.RequireSamplesCountInHistogram(t, hist, 3)
	})

	t.Run("in-flight gauge returns to zero after the request", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		inFlightGauge := func() prometheus.Gauge {
			return collector.InFlight.With(prometheus.Labels{
				"method":        http.MethodGet,
				"route_pattern": "/api/dialcoach/v1/recordings/{id}",
			})
		}

		var inFlightDuringRequest float64
		router := chi.NewRouter()
		router.Use(HTTPRequestMetrics(collector))
		router.Get("/api/dialcoach/v1/recordings/{id}", func(rw http.ResponseWriter, r *http.Request) {
			inFlightDuringRequest = testutil.ToFloat64(inFlightGauge())
			rw.WriteHeader(http.StatusOK)
		})

		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/dialcoach/v1/recordings/rec-1", nil))

		require.Equal(t, float64(1), inFlightDuringRequest)
		require.Equal(t, float64(0), testutil.ToFloat64(inFlightGauge()))
	})

	t.Run("panic is observed as 500 and re-raised", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		router := newRouter(collector, HTTPRequestMetricsOpts{})

		resp := httptest.NewRecorder()
		require.Panics(t, func() {
			router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))
		})

		hist := durationsHist(collector, http.MethodGet, "/boom", "500")
		dialtest.RequireSamplesCountInHistogram(t, hist, 1)
	})

	t.Run("excluded endpoints are not observed", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		router := newRouter(collector, HTTPRequestMetricsOpts{ExcludedEndpoints: []string{"/healthz"}})

		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, resp.Code)

		hist := durationsHist(collector, http.MethodGet, "/healthz", "200")
		dialtest.RequireSamplesCountInHistogram(t, hist, 0)
	})
}
