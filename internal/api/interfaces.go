package api

import (
	"docsync/internal/models"
	"docsync/internal/services/collaboration"
)

// The handlers are the consumer, so the interfaces they call live here.

// CollaborationService is the read-only view of live sessions the HTTP API
// exposes. It never mutates session state.
type CollaborationService interface {
	Sessions() []collaboration.SessionSummary
	Presence(documentID string) ([]models.UserPresence, bool)
	SessionCount() int
	ConnectionCount() int
}
