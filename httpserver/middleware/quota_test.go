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

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/testutil"
)

func TestQuota(t *testing.T) {
	okHandler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	feedbackRules := []QuotaRule{
		{
			RoutePathsPatterns: []string{"/api/dialcoach/v1/recordings/*/feedback"},
			Limit:              2,
			Window:             time.Hour,
		},
	}

	doRequest := func(handler http.Handler, urlPath, userID string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, urlPath, nil)
		if userID != "" {
			req = req.WithContext(NewContextWithUserID(req.Context(), userID))
		}
		handler.ServeHTTP(resp, req)
		return resp
	}

	t.Run("requests over the quota are rejected with 429", func(t *testing.T) {
		mw, err := Quota(ratelimit.NewQuotaStore(), feedbackRules, testErrDomain)
		require.NoError(t, err)
		handler := mw(okHandler)

		resp := doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "user-1")
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "2", resp.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1", resp.Header().Get("X-RateLimit-Remaining"))
		require.NotEmpty(t, resp.Header().Get("X-RateLimit-Reset"))

		resp = doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "user-1")
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "0", resp.Header().Get("X-RateLimit-Remaining"))

		resp = doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "user-1")
		testutil.RequireErrorInRecorder(
			t, resp, http.StatusTooManyRequests, testErrDomain, restapi.ErrCodeTooManyRequests)
		require.Equal(t, "0", resp.Header().Get("X-RateLimit-Remaining"))

		retryAfter, err := strconv.Atoi(resp.Header().Get("Retry-After"))
		require.NoError(t, err)
		require.Greater(t, retryAfter, 0)
		require.LessOrEqual(t, retryAfter, int(time.Hour.Seconds()))
	})

	t.Run("quota is tracked per subject", func(t *testing.T) {
		mw, err := Quota(ratelimit.NewQuotaStore(), feedbackRules, testErrDomain)
		require.NoError(t, err)
		handler := mw(okHandler)

		for i := 0; i < 2; i++ {
			resp := doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "user-1")
			require.Equal(t, http.StatusOK, resp.Code)
		}
		resp := doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "user-1")
		require.Equal(t, http.StatusTooManyRequests, resp.Code)

		resp = doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "user-2")
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("requests that match no rule pass through unchecked", func(t *testing.T) {
		mw, err := Quota(ratelimit.NewQuotaStore(), feedbackRules, testErrDomain)
		require.NoError(t, err)
		handler := mw(okHandler)

		for i := 0; i < 5; i++ {
			resp := doRequest(handler, "/api/dialcoach/v1/recordings", "user-1")
			require.Equal(t, http.StatusOK, resp.Code)
			require.Empty(t, resp.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("remote ip is the subject for unauthenticated requests", func(t *testing.T) {
		mw, err := Quota(ratelimit.NewQuotaStore(), feedbackRules, testErrDomain)
		require.NoError(t, err)
		handler := mw(okHandler)

		for i := 0; i < 2; i++ {
			resp := doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "")
			require.Equal(t, http.StatusOK, resp.Code)
		}
		resp := doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "")
		require.Equal(t, http.StatusTooManyRequests, resp.Code)
	})

	t.Run("custom subject key", func(t *testing.T) {
		mw, err := QuotaWithOpts(ratelimit.NewQuotaStore(), feedbackRules, testErrDomain, QuotaOpts{
			GetSubjectKey: func(r *http.Request) string {
				return r.Header.Get("X-Tenant-ID")
			},
		})
		require.NoError(t, err)
		handler := mw(okHandler)

		doTenantRequest := func(tenantID string) int {
			resp := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/dialcoach/v1/recordings/rec-1/feedback", nil)
			req.Header.Set("X-Tenant-ID", tenantID)
			handler.ServeHTTP(resp, req)
			return resp.Code
		}

		require.Equal(t, http.StatusOK, doTenantRequest("tenant-a"))
		require.Equal(t, http.StatusOK, doTenantRequest("tenant-a"))
		require.Equal(t, http.StatusTooManyRequests, doTenantRequest("tenant-a"))
		require.Equal(t, http.StatusOK, doTenantRequest("tenant-b"))
	})

	t.Run("rejections are counted in metrics", func(t *testing.T) {
		collector := NewQuotaMetricsCollector("")
		mw, err := QuotaWithOpts(ratelimit.NewQuotaStore(), feedbackRules, testErrDomain, QuotaOpts{
			MetricsCollector: collector,
		})
		require.NoError(t, err)
		handler := mw(okHandler)

		for i := 0; i < 4; i++ {
			doRequest(handler, "/api/dialcoach/v1/recordings/rec-1/feedback", "user-1")
		}

		rejections := collector.Rejections.WithLabelValues("/api/dialcoach/v1/recordings/*/feedback")
		require.Equal(t, float64(2), promtestutil.ToFloat64(rejections))
	})

	t.Run("invalid rules are rejected", func(t *testing.T) {
		_, err := Quota(ratelimit.NewQuotaStore(), []QuotaRule{{
			RoutePathsPatterns: []string{"/api/*"}, Limit: 0, Window: time.Hour,
		}}, testErrDomain)
		require.Error(t, err)

		_, err = Quota(ratelimit.NewQuotaStore(), []QuotaRule{{
			RoutePathsPatterns: []string{"/api/*"}, Limit: 10, Window: 0,
		}}, testErrDomain)
		require.Error(t, err)

		_, err = Quota(nil, feedbackRules, testErrDomain)
		require.Error(t, err)
	})
}
