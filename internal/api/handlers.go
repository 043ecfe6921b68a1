package api

import (
	"encoding/json"
	"net/http"

	"docsync/internal/logging"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests
type Handler struct {
	collab    CollaborationService
	wsHandler http.Handler // websocket upgrade for /ws/collaborate
	metrics   http.Handler // prometheus exposition, nil disables /metrics
	logger    logging.Logger
}

func NewHandler(collab CollaborationService, wsHandler http.Handler, metrics http.Handler) *Handler {
	return &Handler{
		collab:    collab,
		wsHandler: wsHandler,
		metrics:   metrics,
		logger:    logging.New("api"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"sessions":    h.collab.SessionCount(),
		"connections": h.collab.ConnectionCount(),
	})
}

// Collaboration handlers

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.collab.Sessions()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	users, ok := h.collab.Presence(id)
	if !ok {
		http.Error(w, "no active session for document "+id, http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"documentId": id,
		"users":      users,
	})
}

// writeJSON sends body with status. The header is already out when encoding
// fails, so the error can only be logged.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warnf("Failed to write %d response: %v", status, err)
	}
}
