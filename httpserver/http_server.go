/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package httpserver provides an HTTP server with predefined middlewares
// (request id, logging, recovery, metrics, rate limiting)
// that implements service.Unit interface.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/service"
)

// Opts represents options for creating HTTPServer.
type Opts struct {
	// ServiceNameInURL is a prefix for API routes (e.g., "/api/dialcoach/v1").
	ServiceNameInURL string

	// APIRoutes is a map of API versions to their route configuration functions.
	APIRoutes map[APIVersion]APIRoute

	// RootMiddlewares is a list of middlewares to be applied to the root router.
	RootMiddlewares []func(http.Handler) http.Handler

	// ErrorDomain is used for error response formatting.
	ErrorDomain string

	// HealthCheck is a function that performs health check logic.
	HealthCheck HealthCheck

	// MetricsHandler is a custom handler for the /metrics endpoint (e.g., Prometheus handler).
	MetricsHandler http.Handler

	// MetricsNamespace is prepended to all HTTP request metric names.
	MetricsNamespace string

	// MetricsConstLabels is a set of labels applied to all HTTP request metrics.
	MetricsConstLabels prometheus.Labels

	// MaxRate limits the rate of all incoming requests (flood protection).
	// Zero Count disables the limiting.
	MaxRate ratelimit.Rate

	// Listener is a pre-configured network listener to use instead of creating a new one.
	Listener net.Listener
}

func (opts Opts) routerOpts() RouterOpts {
	return RouterOpts{
		ServiceNameInURL: opts.ServiceNameInURL,
		APIRoutes:        opts.APIRoutes,
		RootMiddlewares:  opts.RootMiddlewares,
		ErrorDomain:      opts.ErrorDomain,
		HealthCheck:      opts.HealthCheck,
		MetricsHandler:   opts.MetricsHandler,
	}
}

// HTTPServer represents a wrapper around http.Server with additional fields and methods.
// chi.Router is used as a handler for the server.
// It also implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	port           int32
	httpServerDone atomic.Value
	reqMetrics     *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined logging, metrics collecting,
// recovering after panics, rate limiting and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) { //nolint // hugeParam: opts is heavy, it's ok in this case.
	reqMetrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:   opts.MetricsNamespace,
		ConstLabels: opts.MetricsConstLabels,
	})

	router := chi.NewRouter()
	if err := applyDefaultMiddlewaresToRouter(router, cfg, logger, opts, reqMetrics); err != nil {
		return nil, err
	}
	configureRouter(router, logger, opts.routerOpts())

	httpServer := &http.Server{
		Addr:              cfg.Address,
		WriteTimeout:      time.Duration(cfg.Timeouts.Write),
		ReadTimeout:       time.Duration(cfg.Timeouts.Read),
		ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
		IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
		Handler:           router,
	}

	return &HTTPServer{
		URL:             "http://" + httpServer.Addr,
		HTTPServer:      httpServer,
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
		reqMetrics:      reqMetrics,
	}, nil
}

// Start starts application HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("read_header_timeout", s.HTTPServer.ReadHeaderTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)

	logger.Info("starting application HTTP server...")

	var err error
	if s.listener == nil {
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("application HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}

	var portStr string
	if _, portStr, err = net.SplitHostPort(s.listener.Addr().String()); err == nil {
		if port, pErr := strconv.ParseInt(portStr, 10, 32); pErr == nil {
			atomic.StoreInt32(&s.port, int32(port))
		}
	}

	if err = s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("application HTTP server closed")
			return
		}
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops application HTTP server (gracefully or not).
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
			<-done // Wait for the listener to be closed.
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")

	if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
		<-done // Wait for the listener to be closed.
	}

	return nil
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	if s.reqMetrics != nil {
		s.reqMetrics.MustRegister()
	}
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	if s.reqMetrics != nil {
		s.reqMetrics.Unregister()
	}
}

// GetPort returns the port the server is listening on.
// Zero is returned until the listener is bound.
func (s *HTTPServer) GetPort() int {
	return int(atomic.LoadInt32(&s.port))
}
