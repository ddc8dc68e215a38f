/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vasayxtx/go-glob"

	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/restapi"
)

// Headers set by the Quota middleware on every request that matched a rule.
const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRetryAfter         = "Retry-After"
)

// QuotaLogFieldSubject it is the name of the logged field that contains a subject key for the quota checks.
const QuotaLogFieldSubject = "quota_subject"

// QuotaRule binds a fixed-window quota to a set of routes.
// RoutePathsPatterns are glob patterns (e.g. "/api/dialcoach/v1/recordings/*/feedback")
// matched against the request URL path. The first matching rule wins.
type QuotaRule struct {
	RoutePathsPatterns []string
	Limit              int
	Window             time.Duration
}

// QuotaOpts represents an options for Quota middleware.
type QuotaOpts struct {
	// GetSubjectKey overrides how the quota subject is derived from the request.
	// By default the authenticated user's id from the context is used,
	// falling back to the remote IP address for unauthenticated requests.
	GetSubjectKey func(r *http.Request) string

	// MetricsCollector counts quota rejections. May be nil.
	MetricsCollector *QuotaMetricsCollector
}

// QuotaMetricsCollector represents collector of metrics for quota checks.
type QuotaMetricsCollector struct {
	Rejections *prometheus.CounterVec
}

// NewQuotaMetricsCollector creates a new metrics collector for quota checks.
func NewQuotaMetricsCollector(namespace string) *QuotaMetricsCollector {
	return &QuotaMetricsCollector{
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_rejections_total",
				Help:      "Total number of requests rejected by per-subject quotas.",
			},
			[]string{"route_pattern"},
		),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (c *QuotaMetricsCollector) MustRegister() {
	prometheus.MustRegister(c.Rejections)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (c *QuotaMetricsCollector) Unregister() {
	prometheus.Unregister(c.Rejections)
}

type quotaRoute struct {
	pattern string
	match   func(s string) bool
	limit   int
	window  time.Duration
}

type quotaHandler struct {
	next          http.Handler
	store         *ratelimit.QuotaStore
	routes        []quotaRoute
	getSubjectKey func(r *http.Request) string
	errDomain     string
	metrics       *QuotaMetricsCollector
}

// Quota is a middleware that enforces per-subject fixed-window quotas on the routes
// described by the rules. Requests that match no rule pass through unchecked.
// Rejected requests get 429 with Retry-After and the X-RateLimit-* headers.
//
// The default subject key is the authenticated user's id from the context,
// so the middleware must be installed after the authentication middleware;
// otherwise every request degrades to the per-IP fallback.
func Quota(
	store *ratelimit.QuotaStore, rules []QuotaRule, errDomain string,
) (func(next http.Handler) http.Handler, error) {
	return QuotaWithOpts(store, rules, errDomain, QuotaOpts{})
}

// MustQuota is a version of Quota that panics if an error occurs.
func MustQuota(store *ratelimit.QuotaStore, rules []QuotaRule, errDomain string) func(next http.Handler) http.Handler {
	mw, err := Quota(store, rules, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// MustQuotaWithOpts is a version of QuotaWithOpts that panics if an error occurs.
func MustQuotaWithOpts(
	store *ratelimit.QuotaStore, rules []QuotaRule, errDomain string, opts QuotaOpts,
) func(next http.Handler) http.Handler {
	mw, err := QuotaWithOpts(store, rules, errDomain, opts)
	if err != nil {
		panic(err)
	}
	return mw
}

// QuotaWithOpts is a more configurable version of Quota middleware.
func QuotaWithOpts(
	store *ratelimit.QuotaStore, rules []QuotaRule, errDomain string, opts QuotaOpts,
) (func(next http.Handler) http.Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}

	var routes []quotaRoute
	for i := range rules {
		rule := rules[i]
		if rule.Limit <= 0 {
			return nil, fmt.Errorf("quota rule %d: limit must be positive, got %d", i, rule.Limit)
		}
		if rule.Window <= 0 {
			return nil, fmt.Errorf("quota rule %d: window must be positive, got %s", i, rule.Window)
		}
		for _, pattern := range rule.RoutePathsPatterns {
			routes = append(routes, quotaRoute{
				pattern: pattern,
				match:   glob.Compile(pattern),
				limit:   rule.Limit,
				window:  rule.Window,
			})
		}
	}

	getSubjectKey := opts.GetSubjectKey
	if getSubjectKey == nil {
		getSubjectKey = defaultQuotaSubjectKey
	}

	return func(next http.Handler) http.Handler {
		return &quotaHandler{
			next:          next,
			store:         store,
			routes:        routes,
			getSubjectKey: getSubjectKey,
			errDomain:     errDomain,
			metrics:       opts.MetricsCollector,
		}
	}, nil
}

func (h *quotaHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	route, ok := h.matchRoute(r.URL.Path)
	if !ok {
		h.next.ServeHTTP(rw, r)
		return
	}

	subject := h.getSubjectKey(r)
	res := h.store.Check(subject, route.limit, route.window)

	rw.Header().Set(headerRateLimitLimit, strconv.Itoa(route.limit))
	rw.Header().Set(headerRateLimitRemaining, strconv.Itoa(res.Remaining))
	rw.Header().Set(headerRateLimitReset, strconv.FormatInt(res.ResetAt.Unix(), 10))

	if !res.Allowed {
		if h.metrics != nil {
			h.metrics.Rejections.WithLabelValues(route.pattern).Inc()
		}
		logger := GetLoggerFromContext(r.Context())
		if logger != nil {
			logger = logger.With(log.String(QuotaLogFieldSubject, subject))
			logger.Warn("quota exceeded",
				log.String("path", r.URL.Path),
				log.Int("limit", route.limit),
				log.Duration("retry_after", res.RetryAfter),
			)
		}
		rw.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		apiErr := restapi.NewError(h.errDomain, restapi.ErrCodeTooManyRequests, restapi.ErrMessageTooManyRequests)
		restapi.RespondError(rw, http.StatusTooManyRequests, apiErr, logger)
		return
	}

	h.next.ServeHTTP(rw, r)
}

func (h *quotaHandler) matchRoute(urlPath string) (quotaRoute, bool) {
	for i := range h.routes {
		if h.routes[i].match(urlPath) {
			return h.routes[i], true
		}
	}
	return quotaRoute{}, false
}

func defaultQuotaSubjectKey(r *http.Request) string {
	if userID := GetUserIDFromContext(r.Context()); userID != "" {
		return userID
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + ip
	}
	return "ip:" + r.RemoteAddr
}
