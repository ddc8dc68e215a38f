/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package ratelimit provides in-memory rate limiting primitives.
//
// QuotaStore is a fixed-window per-subject quota counter used for API quota
// accounting (limits and windows are supplied per call, so different routes
// may enforce different quotas against the same store). SlidingWindowLimiter
// and LeakyBucketLimiter are self-contained limiters with a fixed rate,
// suitable for global server-side throttling.
//
// All state lives in process memory and does not survive restarts. Counters
// are per instance: a horizontally scaled deployment over- or under-admits
// proportionally to the number of instances.
package ratelimit

import (
	"context"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter interface defines the rate limiting contract.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}
