/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package api contains HTTP handlers of the dialcoach REST API.
package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dialcoach/dialcoach/chat"
	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/storage"
	"github.com/dialcoach/dialcoach/transcribe"
)

// ErrorDomain is the default domain for API error responses.
const ErrorDomain = "Dialcoach"

// Transcriber submits audio to the external speech-to-text + PII-detection provider
// and polls for the result.
type Transcriber interface {
	SubmitJob(ctx context.Context, audioURL string) (*transcribe.Job, error)
	WaitForResult(ctx context.Context, jobID string) (*transcribe.Result, error)
}

// FeedbackGenerator produces coaching feedback for a redacted transcript.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, redactedTranscript string) (string, error)
}

// Handlers implements the dialcoach REST API on top of the storage, transcribe,
// coach, chat and ratelimit packages.
type Handlers struct {
	ErrorDomain string
	Store       *storage.Store
	Transcriber Transcriber
	Coach       FeedbackGenerator
	Hub         *chat.Hub
	Logger      log.FieldLogger

	// QuotaStore with QuotaLimit and QuotaWindow describe the per-user quota:
	// Routes enforces it on the paths matching QuotaRoutes (glob patterns),
	// and GET /quota reports it. Enforcement and reporting share the user id
	// as the subject key.
	QuotaStore   *ratelimit.QuotaStore
	QuotaLimit   int
	QuotaWindow  time.Duration
	QuotaRoutes  []string
	QuotaMetrics *middleware.QuotaMetricsCollector
}

// Routes registers all API routes on the passed router.
// All routes require bearer authentication. The quota middleware is installed
// after authentication so quotas are keyed by the user id, not by the address.
func (h *Handlers) Routes(router chi.Router) {
	router.Use(h.BearerAuth)

	if h.QuotaStore != nil && len(h.QuotaRoutes) > 0 {
		router.Use(middleware.MustQuotaWithOpts(h.QuotaStore, []middleware.QuotaRule{{
			RoutePathsPatterns: h.QuotaRoutes,
			Limit:              h.QuotaLimit,
			Window:             h.QuotaWindow,
		}}, h.errorDomain(), middleware.QuotaOpts{MetricsCollector: h.QuotaMetrics}))
	}

	assignRoles := h.RequireRole(storage.RoleAdmin, storage.RoleManager)

	router.Route("/recordings", func(router chi.Router) {
		router.With(assignRoles).Post("/", h.CreateRecording)
		router.Get("/", h.ListRecordings)
		router.Route("/{recordingID}", func(router chi.Router) {
			router.Get("/", h.GetRecording)
			router.With(assignRoles).Post("/transcript", h.IngestTranscript)
			router.Get("/transcript", h.GetTranscript)
			router.With(assignRoles).Post("/feedback", h.GenerateFeedback)
		})
	})

	router.Route("/assignments", func(router chi.Router) {
		router.With(assignRoles).Post("/", h.CreateAssignment)
		router.Get("/", h.ListAssignments)
		router.Patch("/{assignmentID}", h.UpdateAssignment)
	})

	router.Get("/quota", h.GetQuota)
	router.Get("/chat/ws", h.ChatWS)
}

func (h *Handlers) errorDomain() string {
	if h.ErrorDomain == "" {
		return ErrorDomain
	}
	return h.ErrorDomain
}
