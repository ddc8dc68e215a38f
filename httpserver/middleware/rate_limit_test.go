/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/testutil"
)

func TestRateLimit(t *testing.T) {
	okHandler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	t.Run("requests over the rate are rejected with 503 and Retry-After", func(t *testing.T) {
		mw, err := RateLimit(ratelimit.Rate{Count: 1, Duration: time.Minute}, testErrDomain)
		require.NoError(t, err)
		handler := mw(okHandler)

		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/dialcoach/v1/recordings", nil))
		require.Equal(t, http.StatusOK, resp.Code)

		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/dialcoach/v1/recordings", nil))
		testutil.RequireErrorInRecorder(
			t, resp, http.StatusServiceUnavailable, testErrDomain, restapi.ErrCodeTooManyRequests)

		retryAfter, err := strconv.Atoi(resp.Header().Get("Retry-After"))
		require.NoError(t, err)
		require.Greater(t, retryAfter, 0)
	})

	t.Run("response status code may be overridden", func(t *testing.T) {
		mw, err := RateLimitWithOpts(ratelimit.Rate{Count: 1, Duration: time.Minute}, testErrDomain,
			RateLimitOpts{ResponseStatusCode: http.StatusTooManyRequests})
		require.NoError(t, err)
		handler := mw(okHandler)

		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, resp.Code)

		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusTooManyRequests, resp.Code)
	})

	t.Run("limiting is done per key when GetKey is provided", func(t *testing.T) {
		mw, err := RateLimitWithOpts(ratelimit.Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{
			GetKey: func(r *http.Request) (string, bool, error) {
				return r.Header.Get("X-Client-ID"), false, nil
			},
		})
		require.NoError(t, err)
		handler := mw(okHandler)

		doRequest := func(clientID string) int {
			resp := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Client-ID", clientID)
			handler.ServeHTTP(resp, req)
			return resp.Code
		}

		require.Equal(t, http.StatusOK, doRequest("client-a"))
		require.Equal(t, http.StatusServiceUnavailable, doRequest("client-a"))
		require.Equal(t, http.StatusOK, doRequest("client-b"))
	})

	t.Run("bypass from GetKey skips limiting", func(t *testing.T) {
		mw, err := RateLimitWithOpts(ratelimit.Rate{Count: 1, Duration: time.Minute}, testErrDomain, RateLimitOpts{
			GetKey: func(r *http.Request) (string, bool, error) {
				return "", true, nil
			},
		})
		require.NoError(t, err)
		handler := mw(okHandler)

		for i := 0; i < 10; i++ {
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, resp.Code)
		}
	})

	t.Run("sliding window allows bursts up to the rate count", func(t *testing.T) {
		mw, err := RateLimitWithOpts(ratelimit.Rate{Count: 3, Duration: time.Minute}, testErrDomain,
			RateLimitOpts{Alg: RateLimitAlgSlidingWindow})
		require.NoError(t, err)
		handler := mw(okHandler)

		for i := 0; i < 3; i++ {
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, resp.Code)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
}
