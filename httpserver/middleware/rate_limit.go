/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/restapi"
)

// DefaultRateLimitMaxKeys is a default value of maximum keys number for the RateLimit middleware.
const DefaultRateLimitMaxKeys = 10000

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// RateLimitAlg represents a type for specifying rate-limiting algorithm.
type RateLimitAlg int

// Supported rate-limiting algorithms.
const (
	RateLimitAlgLeakyBucket RateLimitAlg = iota
	RateLimitAlgSlidingWindow
)

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
// An empty key with bypass=true skips limiting for the request.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	Alg                RateLimitAlg
	MaxBurst           int
	GetKey             RateLimitGetKeyFunc
	MaxKeys            int
	ResponseStatusCode int
}

type rateLimitHandler struct {
	next           http.Handler
	limiter        ratelimit.Limiter
	getKey         RateLimitGetKeyFunc
	errDomain      string
	respStatusCode int
}

// RateLimit is a middleware protecting the whole server from request floods.
// It limits the rate of all HTTP requests with the leaky bucket algorithm
// using a single shared bucket.
func RateLimit(maxRate ratelimit.Rate, errDomain string) (func(next http.Handler) http.Handler, error) {
	return RateLimitWithOpts(maxRate, errDomain, RateLimitOpts{})
}

// MustRateLimit is a version of RateLimit that panics if an error occurs.
func MustRateLimit(maxRate ratelimit.Rate, errDomain string) func(next http.Handler) http.Handler {
	mw, err := RateLimit(maxRate, errDomain)
	if err != nil {
		panic(err)
	}
	return mw
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(
	maxRate ratelimit.Rate, errDomain string, opts RateLimitOpts,
) (func(next http.Handler) http.Handler, error) {
	maxKeys := 0
	if opts.GetKey != nil {
		maxKeys = opts.MaxKeys
		if maxKeys == 0 {
			maxKeys = DefaultRateLimitMaxKeys
		}
	}

	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusServiceUnavailable
	}

	var limiter ratelimit.Limiter
	var err error
	switch opts.Alg {
	case RateLimitAlgLeakyBucket:
		limiter, err = ratelimit.NewLeakyBucketLimiter(maxRate, opts.MaxBurst, maxKeys)
	case RateLimitAlgSlidingWindow:
		limiter, err = ratelimit.NewSlidingWindowLimiter(maxRate, maxKeys)
	default:
		return nil, fmt.Errorf("unknown rate limit alg")
	}
	if err != nil {
		return nil, fmt.Errorf("new rate limiter: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			limiter:        limiter,
			getKey:         opts.GetKey,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
		}
	}, nil
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())

	var key string
	if h.getKey != nil {
		var bypass bool
		var err error
		if key, bypass, err = h.getKey(r); err != nil {
			if logger != nil {
				logger.Error("failed to get key for rate limiting", log.Error(err))
			}
			restapi.RespondInternalError(rw, h.errDomain, logger)
			return
		}
		if bypass {
			h.next.ServeHTTP(rw, r)
			return
		}
	}

	allow, retryAfter, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		if logger != nil {
			logger.Error("rate limiting error", log.String(RateLimitLogFieldKey, key), log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errDomain, logger)
		return
	}
	if !allow {
		if logger != nil {
			logger = logger.With(log.String(RateLimitLogFieldKey, key))
		}
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		apiErr := restapi.NewError(h.errDomain, restapi.ErrCodeTooManyRequests, restapi.ErrMessageTooManyRequests)
		restapi.RespondError(rw, h.respStatusCode, apiErr, logger)
		return
	}

	h.next.ServeHTTP(rw, r)
}
