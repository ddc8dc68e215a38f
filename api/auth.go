/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/storage"
)

type ctxKey int

const ctxKeyUser ctxKey = iota

// NewContextWithUser creates a new context with the authenticated user's profile.
func NewContextWithUser(ctx context.Context, user *storage.UserProfile) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// GetUserFromContext extracts the authenticated user's profile from the context.
func GetUserFromContext(ctx context.Context) *storage.UserProfile {
	user, _ := ctx.Value(ctxKeyUser).(*storage.UserProfile)
	return user
}

// BearerAuth is a middleware that authenticates requests by the opaque bearer session token
// issued by the external auth provider. The matched user profile is put into the request's
// context together with the user id used as the quota subject key.
func (h *Handlers) BearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		logger := middleware.GetLoggerFromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			respondUnauthenticated(rw, h.errorDomain(), logger)
			return
		}

		user, err := h.Store.GetUserProfileBySessionToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondUnauthenticated(rw, h.errorDomain(), logger)
				return
			}
			if logger != nil {
				logger.Error("failed to look up session token", log.Error(err))
			}
			restapi.RespondInternalError(rw, h.errorDomain(), logger)
			return
		}

		ctx := NewContextWithUser(r.Context(), user)
		ctx = middleware.NewContextWithUserID(ctx, user.ID)
		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

// RequireRole is a middleware that allows the request only for users with one of the given roles.
// It must be used after BearerAuth.
func (h *Handlers) RequireRole(roles ...storage.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				respondUnauthenticated(rw, h.errorDomain(), middleware.GetLoggerFromContext(r.Context()))
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(rw, r)
					return
				}
			}
			respondForbidden(rw, h.errorDomain(), middleware.GetLoggerFromContext(r.Context()))
		})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return auth[len(prefix):]
}

func respondUnauthenticated(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	apiErr := restapi.NewError(domain, restapi.ErrCodeUnauthenticated, restapi.ErrMessageUnauthenticated)
	restapi.RespondError(rw, http.StatusUnauthorized, apiErr, logger)
}

func respondForbidden(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	apiErr := restapi.NewError(domain, restapi.ErrCodeForbidden, restapi.ErrMessageForbidden)
	restapi.RespondError(rw, http.StatusForbidden, apiErr, logger)
}
