/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package api

import (
	"net/http"
	"time"

	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/restapi"
)

type quotaResponse struct {
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	WindowSec int        `json:"windowSeconds"`
	ResetAt   *time.Time `json:"resetAt,omitempty"`
}

// GetQuota handles GET /quota. It reports the caller's remaining quota
// without consuming any of it.
func (h *Handlers) GetQuota(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	if h.QuotaStore == nil || h.QuotaLimit <= 0 {
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	res := h.QuotaStore.Status(user.ID, h.QuotaLimit)
	respData := &quotaResponse{
		Limit:     h.QuotaLimit,
		Remaining: res.Remaining,
		WindowSec: int(h.QuotaWindow / time.Second),
	}
	if !res.ResetAt.IsZero() {
		resetAt := res.ResetAt
		respData.ResetAt = &resetAt
	}
	restapi.RespondJSON(rw, respData, logger)
}
