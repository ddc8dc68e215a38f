/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/storage"
)

type createAssignmentRequest struct {
	UserID  string     `json:"userId"`
	VideoID string     `json:"videoId"`
	Title   string     `json:"title"`
	DueAt   *time.Time `json:"dueAt"`
}

type assignmentResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	VideoID     string     `json:"videoId"`
	Title       string     `json:"title"`
	AssignedBy  string     `json:"assignedBy"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func makeAssignmentResponse(a *storage.TrainingAssignment) *assignmentResponse {
	resp := &assignmentResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		VideoID:    a.VideoID,
		Title:      a.Title,
		AssignedBy: a.AssignedBy,
		Status:     string(a.Status),
		CreatedAt:  a.CreatedAt,
	}
	if !a.DueAt.IsZero() {
		dueAt := a.DueAt
		resp.DueAt = &dueAt
	}
	if !a.CompletedAt.IsZero() {
		completedAt := a.CompletedAt
		resp.CompletedAt = &completedAt
	}
	return resp
}

// CreateAssignment handles POST /assignments. Only admins and managers assign training.
func (h *Handlers) CreateAssignment(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	var reqData createAssignmentRequest
	if err := restapi.DecodeRequestJSON(r, &reqData); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errorDomain(), err, logger)
		return
	}
	if reqData.UserID == "" || reqData.VideoID == "" {
		reqErr := &restapi.MalformedRequestError{
			HTTPStatusCode: http.StatusBadRequest,
			Message:        "userId and videoId are required",
		}
		restapi.RespondMalformedRequestError(rw, h.errorDomain(), reqErr, logger)
		return
	}

	// The assignee must belong to the same company.
	assignee, err := h.Store.GetUserProfile(r.Context(), reqData.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondNotFound(rw, logger)
			return
		}
		if logger != nil {
			logger.Error("failed to get assignee profile", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}
	if assignee.CompanyID != user.CompanyID {
		h.respondNotFound(rw, logger)
		return
	}

	assignment := &storage.TrainingAssignment{
		ID:         uuid.NewString(),
		CompanyID:  user.CompanyID,
		UserID:     reqData.UserID,
		VideoID:    reqData.VideoID,
		Title:      reqData.Title,
		AssignedBy: user.ID,
		Status:     storage.AssignmentStatusAssigned,
		CreatedAt:  time.Now().UTC(),
	}
	if reqData.DueAt != nil {
		assignment.DueAt = reqData.DueAt.UTC()
	}
	if err := h.Store.CreateAssignment(r.Context(), assignment); err != nil {
		if logger != nil {
			logger.Error("failed to create assignment", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	restapi.RespondCodeAndJSON(rw, http.StatusCreated, makeAssignmentResponse(assignment), logger)
}

// ListAssignments handles GET /assignments.
// Members see only their own assignments; admins and managers see the whole
// company and may filter by the userId query parameter.
func (h *Handlers) ListAssignments(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	userID := r.URL.Query().Get("userId")
	if user.Role == storage.RoleMember {
		userID = user.ID
	}

	assignments, err := h.Store.ListAssignments(r.Context(), user.CompanyID, userID)
	if err != nil {
		if logger != nil {
			logger.Error("failed to list assignments", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	respData := make([]*assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		respData = append(respData, makeAssignmentResponse(a))
	}
	restapi.RespondJSON(rw, respData, logger)
}

type updateAssignmentRequest struct {
	Status string `json:"status"`
}

// UpdateAssignment handles PATCH /assignments/{assignmentID}.
// Members may complete only their own assignments; admins and managers may
// complete any assignment within the company.
func (h *Handlers) UpdateAssignment(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	var reqData updateAssignmentRequest
	if err := restapi.DecodeRequestJSON(r, &reqData); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, h.errorDomain(), err, logger)
		return
	}
	if reqData.Status != string(storage.AssignmentStatusCompleted) {
		reqErr := &restapi.MalformedRequestError{
			HTTPStatusCode: http.StatusBadRequest,
			Message:        `status must be "completed"`,
		}
		restapi.RespondMalformedRequestError(rw, h.errorDomain(), reqErr, logger)
		return
	}

	assignment, err := h.Store.GetAssignment(r.Context(), user.CompanyID, chi.URLParam(r, "assignmentID"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondNotFound(rw, logger)
			return
		}
		if logger != nil {
			logger.Error("failed to get assignment", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}
	if user.Role == storage.RoleMember && assignment.UserID != user.ID {
		respondForbidden(rw, h.errorDomain(), logger)
		return
	}

	completedAt := time.Now().UTC()
	if err := h.Store.CompleteAssignment(r.Context(), user.CompanyID, assignment.ID, completedAt); err != nil {
		if logger != nil {
			logger.Error("failed to complete assignment", log.Error(err))
		}
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	assignment.Status = storage.AssignmentStatusCompleted
	assignment.CompletedAt = completedAt
	restapi.RespondJSON(rw, makeAssignmentResponse(assignment), logger)
}
