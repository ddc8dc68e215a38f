/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperOpts represents an options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration
}

// RateLimitingRoundTripper wraps an http.RoundTripper and limits the rate of
// outgoing requests. Transcription providers bill per request and throttle
// aggressively, so the client keeps itself under the agreed rate instead of
// collecting 429s.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	rateLimiter *rate.Limiter

	RateLimit   int
	Burst       int
	WaitTimeout time.Duration
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with specified rate limit per second.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper with specified rate limit and options.
// For options that are not presented, the default values will be used.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}

	return &RateLimitingRoundTripper{
		Delegate:    delegate,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), opts.Burst),
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
	}, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Body != nil {
		defer func() {
			_ = r.Body.Close() // Per RoundTripper contract.
		}()
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	defer cancel()

	if err := rt.rateLimiter.Wait(ctx); err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			return nil, &RateLimitingWaitError{Inner: err}
		}
	}

	return rt.Delegate.RoundTrip(r)
}

// RateLimitingWaitError is returned in RoundTrip method of RateLimitingRoundTripper when rate limit is exceeded.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
