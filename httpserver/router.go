/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/restapi"
)

// systemEndpoints is a list of endpoints which are not involved in metrics collecting and rate limiting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// APIVersion is a type alias for API version.
type APIVersion = int

// APIRoute is a type alias for single API route.
type APIRoute = func(router chi.Router)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	ServiceNameInURL string
	APIRoutes        map[APIVersion]APIRoute
	RootMiddlewares  []func(http.Handler) http.Handler
	ErrorDomain      string
	HealthCheck      HealthCheck
	MetricsHandler   http.Handler
}

// NewRouter creates a new chi.Router and performs its basic configuration.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	router.Use(opts.RootMiddlewares...)

	// Expose endpoint for Prometheus.
	metricsHandler := opts.MetricsHandler
	if opts.MetricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))

	router.Route(fmt.Sprintf("/api/%s", opts.ServiceNameInURL), func(router chi.Router) {
		for ver, r := range opts.APIRoutes {
			router.Route(fmt.Sprintf("/v%d", ver), r)
		}
	})

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, logger)
	})

	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, logger)
	})
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func applyDefaultMiddlewaresToRouter(
	router chi.Router, cfg *Config, logger log.FieldLogger, opts Opts, collector *middleware.HTTPRequestMetricsCollector,
) error {
	router.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			handler.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})

	router.Use(middleware.RequestID())

	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
		RequestStart:      cfg.Log.RequestStart,
		ExcludedEndpoints: cfg.Log.ExcludedEndpoints,
	}))

	router.Use(middleware.Recovery(opts.ErrorDomain))

	router.Use(middleware.HTTPRequestMetricsWithOpts(collector, middleware.HTTPRequestMetricsOpts{
		ExcludedEndpoints: systemEndpoints,
	}))

	if opts.MaxRate.Count > 0 {
		rateLimitMw, err := middleware.RateLimit(opts.MaxRate, opts.ErrorDomain)
		if err != nil {
			return fmt.Errorf("create rate limit middleware: %w", err)
		}
		router.Use(bypassForSystemEndpoints(rateLimitMw))
	}

	if cfg.Limits.MaxBodySizeBytes > 0 {
		router.Use(middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySizeBytes), opts.ErrorDomain))
	}

	return nil
}

func bypassForSystemEndpoints(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			for i := 0; i < len(systemEndpoints); i++ {
				if r.URL.Path == systemEndpoints[i] {
					next.ServeHTTP(rw, r)
					return
				}
			}
			limited.ServeHTTP(rw, r)
		})
	}
}
