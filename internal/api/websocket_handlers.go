package api

import (
	"net/http"
)

// WebSocket endpoints

// HandleCollaborate upgrades to a collaboration connection. The document is
// named by the client's first join message.
func (h *Handler) HandleCollaborate(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.ServeHTTP(w, r)
}
