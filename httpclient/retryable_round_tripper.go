/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dialcoach/dialcoach/log"
)

// Default parameter values for RetryableRoundTripper.
const (
	DefaultMaxRetryAttempts                  = 5
	DefaultExponentialBackoffInitialInterval = time.Second
	DefaultExponentialBackoffMultiplier      = 2
)

// RetryAttemptNumberHeader is an HTTP header name that will contain the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// BackoffPolicy creates a fresh backoff for each request.
type BackoffPolicy func() backoff.BackOff

// DefaultBackoffPolicy is exponential backoff starting at one second.
var DefaultBackoffPolicy BackoffPolicy = func() backoff.BackOff {
	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = DefaultExponentialBackoffInitialInterval
	bf.Multiplier = DefaultExponentialBackoffMultiplier
	bf.Reset()
	return bf
}

// CheckRetryFunc is called right after each attempt and determines if the next retry attempt is needed.
type CheckRetryFunc func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error)

// RetryableRoundTripper wraps an http.RoundTripper and retries failed requests.
// The request body is buffered so it can be resent; a Retry-After response
// header takes precedence over the backoff policy for the wait time.
type RetryableRoundTripper struct {
	Delegate http.RoundTripper

	Logger log.FieldLogger

	// MaxRetryAttempts determines how many maximum retry attempts can be done.
	// The total number of sent HTTP requests may be MaxRetryAttempts + 1.
	MaxRetryAttempts int

	// CheckRetry determines if the next retry attempt is needed.
	// By default, DefaultCheckRetry function is used.
	CheckRetry CheckRetryFunc

	// BackoffPolicy computes the wait time before the next retry attempt
	// when the response doesn't carry a Retry-After HTTP header.
	BackoffPolicy BackoffPolicy
}

// RetryableRoundTripperOpts represents an options for RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	Logger           log.FieldLogger
	MaxRetryAttempts int
	CheckRetryFunc   CheckRetryFunc
	BackoffPolicy    BackoffPolicy
}

// NewRetryableRoundTripper returns a new instance of RetryableRoundTripper.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a new instance of RetryableRoundTripper with specified options.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 {
		return nil, fmt.Errorf("incorrect max retry attempts")
	}
	if opts.MaxRetryAttempts == 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.CheckRetryFunc == nil {
		opts.CheckRetryFunc = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = DefaultBackoffPolicy
	}

	return &RetryableRoundTripper{
		Delegate:         delegate,
		Logger:           opts.Logger,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		BackoffPolicy:    opts.BackoffPolicy,
	}, nil
}

// RoundTrip performs request with retry logic.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rewindReqBody := func(r *http.Request) {}
	if req.Body != nil {
		originalReqBody := req.Body
		defer func() {
			_ = originalReqBody.Close() // Per RoundTripper contract.
		}()

		bufferedReqBody, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, &RetryableRoundTripperError{Inner: fmt.Errorf("buffer request body: %w", err)}
		}
		rewindReqBody = func(r *http.Request) {
			r.Body = io.NopCloser(bytes.NewReader(bufferedReqBody))
		}
	}

	bf := rt.BackoffPolicy()
	reqCtx := req.Context()
	reqCloned := false

	var resp *http.Response
	var roundTripErr error
	for curRetryAttemptNum := 0; ; curRetryAttemptNum++ {
		rewindReqBody(req)

		// Discard and close response body before next retry.
		if resp != nil && roundTripErr == nil {
			rt.drainResponseBody(resp)
		}

		if curRetryAttemptNum > 0 {
			if !reqCloned {
				req, reqCloned = req.Clone(req.Context()), true // Per RoundTripper contract.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(curRetryAttemptNum))
		}

		resp, roundTripErr = rt.Delegate.RoundTrip(req)

		needRetry, checkRetryErr := rt.CheckRetry(reqCtx, resp, roundTripErr, curRetryAttemptNum)
		if checkRetryErr != nil {
			rt.Logger.Error(fmt.Sprintf(
				"failed to check if retry is needed, %d request(s) done", curRetryAttemptNum+1),
				log.Error(checkRetryErr))
			return resp, roundTripErr
		}
		if !needRetry {
			return resp, roundTripErr
		}

		if curRetryAttemptNum >= rt.MaxRetryAttempts {
			rt.Logger.Warnf("max retry attempts exceeded (%d), %d request(s) done",
				rt.MaxRetryAttempts, curRetryAttemptNum+1)
			return resp, roundTripErr
		}
		waitTime, stop := rt.nextWaitTime(bf, resp)
		if stop {
			return resp, roundTripErr
		}

		select {
		case <-reqCtx.Done():
			rt.Logger.Warnf("context canceled (%v) while waiting for the next retry attempt, %d request(s) done",
				reqCtx.Err(), curRetryAttemptNum+1)
			return resp, roundTripErr
		case <-time.After(waitTime):
		}
	}
}

func (rt *RetryableRoundTripper) nextWaitTime(bf backoff.BackOff, resp *http.Response) (time.Duration, bool) {
	if resp != nil {
		if retryAfter, ok := parseRetryAfterFromResponse(resp); ok {
			return retryAfter, false
		}
	}
	waitTime := bf.NextBackOff()
	return waitTime, waitTime == backoff.Stop
}

func (rt *RetryableRoundTripper) drainResponseBody(resp *http.Response) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			rt.Logger.Error("failed to close previous response body between retry attempts", log.Error(closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		rt.Logger.Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
}

// RetryableRoundTripperError is returned in RoundTrip method of RetryableRoundTripper
// when the original request cannot be potentially retried.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return fmt.Sprintf("retryable round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries on temporary network errors, 429s, and 5xx responses.
func DefaultCheckRetry(
	_ context.Context, resp *http.Response, roundTripErr error, _ int,
) (needRetry bool, err error) {
	if roundTripErr != nil {
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("both response and round trip error are nil")
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

// CheckErrorIsTemporary checks either error is temporary or not.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	ok := errors.As(err, &terr)
	return ok && terr.Temporary()
}

func parseRetryAfterFromResponse(resp *http.Response) (retryAfter time.Duration, ok bool) {
	retryAfterVal := resp.Header.Get("Retry-After")
	if retryAfterVal == "" {
		return 0, false
	}

	parsedInt, parseIntErr := strconv.Atoi(retryAfterVal)
	if parseIntErr != nil {
		parsedTime, parsedTimeErr := time.Parse(time.RFC1123, retryAfterVal)
		if parsedTimeErr != nil {
			return 0, false
		}
		return time.Until(parsedTime), true
	}
	if parsedInt < 0 {
		return 0, false
	}
	return time.Duration(parsedInt) * time.Second, true
}
