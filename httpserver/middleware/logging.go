/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dialcoach/dialcoach/log"
)

// LoggingOpts represents an options for Logging middleware.
type LoggingOpts struct {
	RequestStart      bool
	ExcludedEndpoints []string
}

type loggingHandler struct {
	next   http.Handler
	logger log.FieldLogger
	opts   LoggingOpts
}

// Logging is a middleware that logs info about HTTP request and response.
// Also, it puts logger (with external and internal request's ids in fields) into request's context.
// Transcript or message payloads are never logged, only request metadata.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	loggerForNext := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)

	logFields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	}
	if addrIP, addrPort, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		logFields = append(logFields, log.String("remote_addr_ip", addrIP))
		if port, pErr := strconv.ParseUint(addrPort, 10, 16); pErr == nil {
			logFields = append(logFields, log.Int64("remote_addr_port", int64(port)))
		}
	}
	logger := loggerForNext.With(logFields...)

	noLog := isLoggingDisabled(r.URL.Path, h.opts.ExcludedEndpoints)

	if h.opts.RequestStart && !noLog {
		logger.Info("request started")
	}

	r = r.WithContext(NewContextWithLogger(ctx, loggerForNext))
	wrw := wrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r)

	if !noLog || wrw.Status() >= http.StatusBadRequest {
		duration := time.Since(startTime)
		logger.Info(
			fmt.Sprintf("response completed in %.3fs", duration.Seconds()),
			log.Int64("duration_ms", duration.Milliseconds()),
			log.Int("status", wrw.Status()),
			log.Int("bytes_sent", wrw.BytesWritten()),
		)
	}
}

func isLoggingDisabled(urlPath string, noLogEndpoints []string) bool {
	for _, endpoint := range noLogEndpoints {
		if urlPath == endpoint {
			return true
		}
	}
	return false
}

func wrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) chimiddleware.WrapResponseWriter {
	if wrw, ok := rw.(chimiddleware.WrapResponseWriter); ok {
		return wrw
	}
	return chimiddleware.NewWrapResponseWriter(rw, protoMajor)
}
