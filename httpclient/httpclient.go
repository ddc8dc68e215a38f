/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package httpclient assembles http.Client instances for calling external
// services. The transport is a chain of round trippers: retries with
// backoff, client-side rate limiting, and bearer authorization.
package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dialcoach/dialcoach/log"
)

// Opts configures the round-tripper chain built by New.
type Opts struct {
	// Timeout is the total request timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the max number of outgoing requests per second.
	// Zero disables client-side rate limiting.
	RateLimit int

	// MaxRetryAttempts caps retries. Zero means DefaultMaxRetryAttempts.
	MaxRetryAttempts int

	// AuthProvider supplies bearer tokens. Nil disables the auth round tripper.
	AuthProvider AuthProvider

	Logger log.FieldLogger
}

// DefaultTimeout is the total request timeout used when Opts.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// New builds an http.Client with the retrying/rate-limiting/auth transport.
func New(opts Opts) (*http.Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()

	retryable, err := NewRetryableRoundTripperWithOpts(transport, RetryableRoundTripperOpts{
		MaxRetryAttempts: opts.MaxRetryAttempts,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new retryable round tripper: %w", err)
	}
	transport = retryable

	if opts.RateLimit > 0 {
		rateLimiting, err := NewRateLimitingRoundTripper(transport, opts.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("new rate limiting round tripper: %w", err)
		}
		transport = rateLimiting
	}

	if opts.AuthProvider != nil {
		transport = NewAuthBearerRoundTripper(transport, opts.AuthProvider)
	}

	return &http.Client{Transport: transport, Timeout: opts.Timeout}, nil
}
