/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/dialcoach/dialcoach/config"
	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/testutil"
)

const testErrorDomain = "Dialcoach"

func newTestConfig(addr string) *Config {
	return &Config{
		Address: addr,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(time.Minute),
			Read:       config.TimeDuration(15 * time.Second),
			ReadHeader: config.TimeDuration(10 * time.Second),
			Idle:       config.TimeDuration(time.Minute),
			Shutdown:   config.TimeDuration(5 * time.Second),
		},
		Limits: LimitsConfig{MaxBodySizeBytes: config.ByteSize(1024 * 1024)},
	}
}

func startTestServer(t *testing.T, opts Opts) (srv *HTTPServer, baseURL string) {
	t.Helper()

	addr := testutil.GetLocalAddrWithFreeTCPPort()
	srv, err := New(newTestConfig(addr), log.NewDisabledLogger(), opts)
	require.NoError(t, err)

	fatalErr := make(chan error, 1)
	go srv.Start(fatalErr)
	require.NoError(t, testutil.WaitListeningServer(addr, 5*time.Second))
	t.Cleanup(func() {
		require.NoError(t, srv.Stop(true))
		select {
		case err := <-fatalErr:
			t.Errorf("unexpected fatal error: %v", err)
		default:
		}
	})

	return srv, "http://" + addr
}

func TestHTTPServer(t *testing.T) {
	t.Run("serves api routes with health check and metrics", func(t *testing.T) {
		opts := Opts{
			ServiceNameInURL: "dialcoach",
			ErrorDomain:      testErrorDomain,
			APIRoutes: map[APIVersion]APIRoute{
				1: func(router chi.Router) {
					router.Get("/ping", func(rw http.ResponseWriter, r *http.Request) {
						restapi.RespondJSON(rw, map[string]string{"message": "pong"}, nil)
					})
				},
			},
			HealthCheck: func(ctx context.Context) (HealthCheckResult, error) {
				return HealthCheckResult{"database": HealthCheckStatusOK}, nil
			},
		}
		_, baseURL := startTestServer(t, opts)

		resp, err := http.Get(baseURL + "/api/dialcoach/v1/ping")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"message":"pong"}`, string(body))
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		healthResp, err := http.Get(baseURL + "/healthz")
		require.NoError(t, err)
		defer func() { require.NoError(t, healthResp.Body.Close()) }()
		require.Equal(t, http.StatusOK, healthResp.StatusCode)
		healthBody, err := io.ReadAll(healthResp.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"components":{"database":true}}`, string(healthBody))

		metricsResp, err := http.Get(baseURL + "/metrics")
		require.NoError(t, err)
		defer func() { require.NoError(t, metricsResp.Body.Close()) }()
		require.Equal(t, http.StatusOK, metricsResp.StatusCode)
	})

	t.Run("unhealthy component makes health check fail", func(t *testing.T) {
		opts := Opts{
			ServiceNameInURL: "dialcoach",
			ErrorDomain:      testErrorDomain,
			HealthCheck: func(ctx context.Context) (HealthCheckResult, error) {
				return HealthCheckResult{"database": HealthCheckStatusFail}, nil
			},
		}
		_, baseURL := startTestServer(t, opts)

		resp, err := http.Get(baseURL + "/healthz")
		require.NoError(t, err)
		defer func() { require.NoError(t, resp.Body.Close()) }()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("unknown routes and methods get error responses", func(t *testing.T) {
		opts := Opts{ServiceNameInURL: "dialcoach", ErrorDomain: testErrorDomain}
		_, baseURL := startTestServer(t, opts)

		resp, err := http.Get(baseURL + "/unknown")
		require.NoError(t, err)
		testutil.RequireErrorInResponse(t, resp, http.StatusNotFound, testErrorDomain, restapi.ErrCodeNotFound)
		require.NoError(t, resp.Body.Close())

		resp, err = http.Post(baseURL+"/healthz", restapi.ContentTypeAppJSON, nil)
		require.NoError(t, err)
		testutil.RequireErrorInResponse(
			t, resp, http.StatusMethodNotAllowed, testErrorDomain, restapi.ErrCodeMethodNotAllowed)
		require.NoError(t, resp.Body.Close())
	})

	t.Run("quotas installed after auth are keyed by user, not address", func(t *testing.T) {
		// Resolves the bearer token into a user id, the way the API's
		// session middleware does.
		authStub := func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				userID := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithUserID(r.Context(), userID)))
			})
		}
		quotaMw := middleware.MustQuota(ratelimit.NewQuotaStore(), []middleware.QuotaRule{
			{
				RoutePathsPatterns: []string{"/api/dialcoach/v1/limited"},
				Limit:              1,
				Window:             time.Hour,
			},
		}, testErrorDomain)

		opts := Opts{
			ServiceNameInURL: "dialcoach",
			ErrorDomain:      testErrorDomain,
			APIRoutes: map[APIVersion]APIRoute{
				1: func(router chi.Router) {
					router.Use(authStub)
					router.Use(quotaMw)
					router.Get("/limited", func(rw http.ResponseWriter, r *http.Request) {
						restapi.RespondJSON(rw, map[string]string{"message": "ok"}, nil)
					})
				},
			},
		}
		_, baseURL := startTestServer(t, opts)

		doGet := func(userID string) *http.Response {
			req, err := http.NewRequest(http.MethodGet, baseURL+"/api/dialcoach/v1/limited", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+userID)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			return resp
		}

		// Both users connect from the same client address; each gets their own quota.
		resp := doGet("user-1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
		require.NoError(t, resp.Body.Close())

		resp = doGet("user-1")
		testutil.RequireErrorInResponse(
			t, resp, http.StatusTooManyRequests, testErrorDomain, restapi.ErrCodeTooManyRequests)
		require.NotEmpty(t, resp.Header.Get("Retry-After"))
		require.NoError(t, resp.Body.Close())

		resp = doGet("user-2")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, resp.Body.Close())
	})

	t.Run("request body limit is enforced", func(t *testing.T) {
		opts := Opts{
			ServiceNameInURL: "dialcoach",
			ErrorDomain:      testErrorDomain,
			APIRoutes: map[APIVersion]APIRoute{
				1: func(router chi.Router) {
					router.Post("/echo", func(rw http.ResponseWriter, r *http.Request) {
						body, readErr := io.ReadAll(r.Body)
						if readErr != nil {
							restapi.RespondMalformedRequestOrInternalError(rw, testErrorDomain, readErr, nil)
							return
						}
						restapi.RespondJSON(rw, map[string]int{"size": len(body)}, nil)
					})
				},
			},
		}

		addr := testutil.GetLocalAddrWithFreeTCPPort()
		cfg := newTestConfig(addr)
		cfg.Limits.MaxBodySizeBytes = config.ByteSize(16)
		srv, err := New(cfg, log.NewDisabledLogger(), opts)
		require.NoError(t, err)
		fatalErr := make(chan error, 1)
		go srv.Start(fatalErr)
		require.NoError(t, testutil.WaitListeningServer(addr, 5*time.Second))
		defer func() { require.NoError(t, srv.Stop(true)) }()

		resp, err := http.Post("http://"+addr+"/api/dialcoach/v1/echo", restapi.ContentTypeAppJSON,
			bytes.NewBufferString(`{"data":"this body is definitely larger than sixteen bytes"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		require.NoError(t, resp.Body.Close())
	})
}
