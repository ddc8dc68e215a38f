/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/restapi"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The session token is the only credential; the browser origin carries
	// no trust for this API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatWS handles GET /chat/ws. It upgrades the connection to a websocket
// and joins the caller to their company's chat room.
func (h *Handlers) ChatWS(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	user := GetUserFromContext(r.Context())

	if h.Hub == nil {
		restapi.RespondInternalError(rw, h.errorDomain(), logger)
		return
	}

	conn, err := chatUpgrader.Upgrade(rw, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		if logger != nil {
			logger.Error("failed to upgrade chat connection", log.Error(err))
		}
		return
	}

	h.Hub.ServeWS(conn, user)
}
