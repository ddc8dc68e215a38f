/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/redact"
	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/storage"
)

// transcriptionTimeout bounds background transcription of one recording.
const transcriptionTimeout = 15 * time.Minute

type createRecordingRequest struct {
	Title      string `json:"title"`
	StorageKey string `json:"storageKey"`
	DurationMS int64  `json:"durationMs"`
}

type recordingResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	StorageKey string    `json:"storageKey"`
	UploadedBy string    `json:"uploadedBy"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

func makeRecordingResponse(rec *storage.Recording) *recordingResponse {
	return &recordingResponse{
		ID:         rec.ID,
		Title:      rec.Title,
		StorageKey: rec.StorageKey,
		UploadedBy: rec.UploadedBy,
		Status:     string(rec.Status),
		DurationMS: rec.DurationMS,
		CreatedAt:  rec.CreatedAt,
	}
}

// CreateRecording handles POST /recordings. The audio blob itself is uploaded
// to external object storage beforehand; only metadata is registered here.
func (h *Handlers) CreateRecording(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	var reqData createRecordingRequest
	if err := restapi.DecodeRequestJSON(r, &reqData); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errorDomain(), err, logger)
		return
	}
	if reqData.Title == "" || reqData.StorageKey == "" {
		reqErr := &restapi.MalformedRequestError{
			HTTPStatusCode: http.StatusBadRequest,
			Message:        "title and storageKey are required",
		}
		restapi.RespondMalformedRequestError(rw, h.errorDomain(), reqErr, logger)
		return
	}

	rec := &storage.Recording{
		ID:         uuid.NewString(),
		CompanyID:  user.CompanyID,
		Title:      reqData.Title,
		StorageKey: reqData.StorageKey,
		UploadedBy: user.ID,
		Status:     storage.RecordingStatusUploaded,
		DurationMS: reqData.DurationMS,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Store.CreateRecording(r.Context(), rec); err != nil {
		if logger != nil {
			logger.Error("failed to create recording", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	restapi.RespondCodeAndJSON(rw, http.StatusCreated, makeRecordingResponse(rec), logger)
}

// ListRecordings handles GET /recordings.
func (h *Handlers) ListRecordings(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	recs, err := h.Store.ListRecordings(r.Context(), user.CompanyID)
	if err != nil {
		if logger != nil {
			logger.Error("failed to list recordings", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	respData := make([]*recordingResponse, 0, len(recs))
	for _, rec := range recs {
		respData = append(respData, makeRecordingResponse(rec))
	}
	restapi.RespondJSON(rw, respData, logger)
}

// GetRecording handles GET /recordings/{recordingID}.
func (h *Handlers) GetRecording(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	rec, ok := h.findRecording(rw, r, user.CompanyID)
	if !ok {
		return
	}
	restapi.RespondJSON(rw, makeRecordingResponse(rec), logger)
}

type ingestTranscriptRequest struct {
	// Provider payload for direct ingestion.
	Language     string         `json:"language"`
	Words        []redact.Word  `json:"words"`
	Matches      []redact.Match `json:"piiMatches"`
	RedactedText string         `json:"redactedText"`

	// AudioURL triggers transcription via the external provider instead.
	AudioURL string `json:"audioUrl"`
}

// IngestTranscript handles POST /recordings/{recordingID}/transcript.
// The request either carries the provider's transcript payload directly,
// or an audio URL which is submitted to the transcription provider;
// in the latter case the transcript is stored when the provider finishes.
func (h *Handlers) IngestTranscript(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	rec, ok := h.findRecording(rw, r, user.CompanyID)
	if !ok {
		return
	}

	var reqData ingestTranscriptRequest
	if err := restapi.DecodeRequestJSON(r, &reqData); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errorDomain(), err, logger)
		return
	}

	if len(reqData.Words) > 0 || reqData.RedactedText != "" {
		transcript := &storage.Transcript{
			RecordingID:  rec.ID,
			Language:     reqData.Language,
			Words:        reqData.Words,
			Matches:      reqData.Matches,
			RedactedText: reqData.RedactedText,
			CreatedAt:    time.Now().UTC(),
		}
		if err := h.Store.UpsertTranscript(r.Context(), transcript); err != nil {
			if logger != nil {
				logger.Error("failed to store transcript", log.Error(err))
			}
			restapi.RespondInternalError(rw, h.errorDomain(), logger)
			return
		}
		if err := h.Store.UpdateRecordingStatus(
			r.Context(), rec.CompanyID, rec.ID, storage.RecordingStatusTranscribed,
		); err != nil {
			if logger != nil {
				logger.Error("failed to update recording status", log.Error(err))
			}
			restapi.RespondInternalError(rw, h.errorDomain(), logger)
			return
		}
		restapi.RespondCodeAndJSON(rw, http.StatusNoContent, nil, logger)
		return
	}

	if reqData.AudioURL == "" {
		reqErr := &restapi.MalformedRequestError{
			HTTPStatusCode: http.StatusBadRequest,
			Message:        "either transcript payload or audioUrl is required",
		}
		restapi.RespondMalformedRequestError(rw, h.errorDomain(), reqErr, logger)
		return
	}
	if h.Transcriber == nil {
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	job, err := h.Transcriber.SubmitJob(r.Context(), reqData.AudioURL)
	if err != nil {
		if logger != nil {
			logger.Error("failed to submit transcription job", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}
	if err := h.Store.UpdateRecordingStatus(
		r.Context(), rec.CompanyID, rec.ID, storage.RecordingStatusTranscribing,
	); err != nil {
		if logger != nil {
			logger.Error("failed to update recording status", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	go h.finishTranscription(rec, job.ID)

	restapi.RespondCodeAndJSON(rw, http.StatusAccepted, map[string]string{"jobId": job.ID}, logger)
}

// finishTranscription waits for the provider to finish the job and stores the result.
// It runs in its own goroutine, detached from the request.
func (h *Handlers) finishTranscription(rec *storage.Recording, jobID string) {
	logger := h.Logger
	if logger != nil {
		logger = logger.With(
			log.String("recording_id", rec.ID),
			log.String("transcription_job_id", jobID),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), transcriptionTimeout)
	defer cancel()

	result, err := h.Transcriber.WaitForResult(ctx, jobID)
	if err != nil {
		if logger != nil {
			logger.Error("transcription failed", log.Error(err))
		}
		if updErr := h.Store.UpdateRecordingStatus(
			ctx, rec.CompanyID, rec.ID, storage.RecordingStatusFailed,
		); updErr != nil && logger != nil {
			logger.Error("failed to mark recording as failed", log.Error(updErr))
		}
		return
	}

	transcript := &storage.Transcript{
		RecordingID:  rec.ID,
		Language:     result.Language,
		Words:        result.Words,
		Matches:      result.Matches,
		RedactedText: result.RedactedText,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.UpsertTranscript(ctx, transcript); err != nil {
		if logger != nil {
			logger.Error("failed to store transcript", log.Error(err))
		}
		return
	}
	if err := h.Store.UpdateRecordingStatus(
		ctx, rec.CompanyID, rec.ID, storage.RecordingStatusTranscribed,
	); err != nil && logger != nil {
		logger.Error("failed to update recording status", log.Error(err))
	}
}

type transcriptResponse struct {
	RecordingID  string   `json:"recordingId"`
	Language     string   `json:"language,omitempty"`
	Text         string   `json:"text"`
	FlaggedTerms []string `json:"flaggedTerms,omitempty"`
}

// GetTranscript handles GET /recordings/{recordingID}/transcript.
// The response carries the redacted text and the compliance terms found in it.
func (h *Handlers) GetTranscript(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	rec, ok := h.findRecording(rw, r, user.CompanyID)
	if !ok {
		return
	}

	transcript, err := h.Store.GetTranscript(r.Context(), rec.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondNotFound(rw, logger)
			return
		}
		if logger != nil {
			logger.Error("failed to get transcript", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	text := redact.ReconstructText(transcript.Words, transcript.Matches, transcript.RedactedText)

	var flagged []string
	if company, cErr := h.Store.GetCompany(r.Context(), user.CompanyID); cErr == nil {
		flagged = redact.NewTermScanner(company.DenyTerms).Scan(text)
	} else if logger != nil {
		logger.Error("failed to get company deny terms", log.Error(cErr))
	}

	restapi.RespondJSON(rw, &transcriptResponse{
		RecordingID:  rec.ID,
		Language:     transcript.Language,
		Text:         text,
		FlaggedTerms: flagged,
	}, logger)
}

type feedbackResponse struct {
	RecordingID string `json:"recordingId"`
	Feedback    string `json:"feedback"`
}

// GenerateFeedback handles POST /recordings/{recordingID}/feedback.
// Only the redacted transcript text is ever sent to the LLM.
func (h *Handlers) GenerateFeedback(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	rec, ok := h.findRecording(rw, r, user.CompanyID)
	if !ok {
		return
	}
	if h.Coach == nil {
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	transcript, err := h.Store.GetTranscript(r.Context(), rec.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondNotFound(rw, logger)
			return
		}
		if logger != nil {
			logger.Error("failed to get transcript", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	text := redact.ReconstructText(transcript.Words, transcript.Matches, transcript.RedactedText)
	feedback, err := h.Coach.GenerateFeedback(r.Context(), text)
	if err != nil {
		if logger != nil {
			logger.Error("failed to generate feedback", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	restapi.RespondJSON(rw, &feedbackResponse{RecordingID: rec.ID, Feedback: feedback}, logger)
}

func (h *Handlers) findRecording(rw http.ResponseWriter, r *http.Request, companyID string) (*storage.Recording, bool) {
	logger := middleware.GetLoggerFromContext(r.Context())

	rec, err := h.Store.GetRecording(r.Context(), companyID, chi.URLParam(r, "recordingID"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondNotFound(rw, logger)
			return nil, false
		}
		if logger != nil {
			logger.Error("failed to get recording", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return nil, false
	}
	return rec, true
}

func (h *Handlers) respondNotFound(rw http.ResponseWriter, logger log.FieldLogger) {
	apiErr := restapi.NewError(h.errorDomain(), restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
	restapi.RespondError(rw, http.StatusNotFound, apiErr, logger)
}
