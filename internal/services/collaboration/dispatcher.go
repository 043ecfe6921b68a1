package collaboration

import (
	"context"
	"errors"

	"docsync/internal/middleware"
	"docsync/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const (
	errDocumentNotFound = "Document not found"
	errAccessDenied     = "Access denied"
	errAccessCheck      = "unable to verify document access"
	errAlreadyJoined    = "already joined"
	errNotAuthorized    = "not authorized to edit"
)

// HandleMessage decodes one inbound frame from conn and dispatches it.
// Malformed frames and unknown types are logged and dropped; the connection
// stays open.
func (m *SessionManager) HandleMessage(ctx context.Context, conn Conn, data []byte) {
	msg, err := models.ParseInbound(data)
	if err != nil {
		m.logger.Warnf("⚠️  Dropping malformed message from %s: %v", conn.ID(), err)
		m.metrics.MessageReceived("invalid")
		return
	}
	m.metrics.MessageReceived(string(msg.Type))

	ctx, span := middleware.StartRootSpan(ctx, "Collaboration.Dispatch",
		attribute.String("connection.id", conn.ID()),
		attribute.String("message.type", string(msg.Type)),
	)
	defer span.End()

	if msg.Type != models.MessageTypeJoin && msg.Type != models.MessageTypeLeave {
		m.touch(conn.ID())
	}

	switch msg.Type {
	case models.MessageTypeJoin:
		m.handleJoin(ctx, conn, msg)
	case models.MessageTypeCursor:
		m.handleCursor(conn, msg)
	case models.MessageTypeContent:
		m.handleContent(conn, msg)
	case models.MessageTypeLeave:
		m.handleLeave(conn)
	default:
		m.logger.Debugf("Ignoring message type %q from %s", msg.Type, conn.ID())
	}
}

func (m *SessionManager) handleJoin(ctx context.Context, conn Conn, msg *models.InboundMessage) {
	if msg.DocumentID == "" || msg.UserID == "" || msg.UserName == "" {
		m.logger.Debugf("Dropping incomplete join from %s", conn.ID())
		return
	}

	if err := m.registry.BeginJoin(conn.ID(), m.participantGone); err != nil {
		if errors.Is(err, ErrAlreadyJoined) {
			m.router.SendTo(conn, models.MessageTypeError, models.NewErrorMessage(errAlreadyJoined))
		}
		return
	}

	access, err := m.resolver.ResolveAccess(ctx, msg.DocumentID, msg.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Errorf("Failed to resolve access for user %s on document %s: %v", msg.UserID, msg.DocumentID, err)
		middleware.AddSpanError(ctx, err)
		m.rejectJoin(conn, errAccessCheck, "store_error")
		return
	}
	if !access.Exists {
		m.rejectJoin(conn, errDocumentNotFound, "not_found")
		return
	}
	if !access.CanView {
		m.rejectJoin(conn, errAccessDenied, "access_denied")
		return
	}

	now := m.now()
	participant := &Participant{
		ConnectionID: conn.ID(),
		UserID:       msg.UserID,
		UserName:     msg.UserName,
		Color:        m.pickColor(),
		LastActive:   now,
		JoinedAt:     now,
		conn:         conn,
	}
	binding := Binding{
		DocumentID:   msg.DocumentID,
		ConnectionID: conn.ID(),
		UserID:       msg.UserID,
		UserName:     msg.UserName,
		CanEdit:      access.CanEdit,
	}

	err = m.registry.CompleteJoin(binding, func() {
		m.sessions.Join(msg.DocumentID, access.Content, participant, func(s *DocumentSession) {
			roster := s.Roster()

			m.router.SendTo(conn, models.MessageTypeSync, &models.SyncMessage{
				Type:       models.MessageTypeSync,
				DocumentID: s.DocumentID(),
				UserColor:  participant.Color,
				CanEdit:    access.CanEdit,
				Content:    s.Content(),
				Users:      roster,
			})

			m.router.Broadcast(s, models.MessageTypePresence, &models.PresenceMessage{
				Type:       models.MessageTypePresence,
				DocumentID: s.DocumentID(),
				Users:      roster,
			}, conn.ID())
		})
	})
	if err != nil {
		m.logger.Debugf("Connection %s closed while joining document %s", conn.ID(), msg.DocumentID)
		return
	}

	middleware.AddSpanEvent(ctx, "participant_joined",
		attribute.String("document.id", msg.DocumentID),
		attribute.Bool("can_edit", access.CanEdit),
	)
	m.logger.Infof("✓ User %s (%s) joined document %s (canEdit=%t)", msg.UserName, msg.UserID, msg.DocumentID, access.CanEdit)
	m.updateGauges()
}

// participantGone reports whether a joined connection no longer has a
// participant in its session. Only the reaper leaves a binding behind like
// that; such a connection may join again.
func (m *SessionManager) participantGone(b Binding) bool {
	present := false
	m.sessions.With(b.DocumentID, func(s *DocumentSession) {
		_, present = s.Participant(b.ConnectionID)
	})
	return !present
}

// touch records activity for the participant bound to connectionID. Any
// message that parses counts, whatever its type.
func (m *SessionManager) touch(connectionID string) {
	binding, ok := m.registry.Binding(connectionID)
	if !ok {
		return
	}
	now := m.now()
	m.sessions.With(binding.DocumentID, func(s *DocumentSession) {
		if p, ok := s.Participant(connectionID); ok {
			p.touch(now)
		}
	})
}

// rejectJoin refuses a join: the client gets an error and the connection is
// closed. The read loop's teardown then forgets it.
func (m *SessionManager) rejectJoin(conn Conn, message, reason string) {
	m.registry.Reject(conn.ID())
	m.router.SendTo(conn, models.MessageTypeError, models.NewErrorMessage(message))
	m.metrics.JoinRejected(reason)
	m.logger.Infof("  Join rejected for %s: %s", conn.ID(), message)
	conn.Close()
}

func (m *SessionManager) handleCursor(conn Conn, msg *models.InboundMessage) {
	binding, ok := m.registry.Binding(conn.ID())
	if !ok || msg.CursorPosition == nil {
		return
	}

	m.sessions.With(binding.DocumentID, func(s *DocumentSession) {
		p, ok := s.Participant(conn.ID())
		if !ok {
			return
		}
		p.moveCursor(*msg.CursorPosition, m.now())

		m.router.Broadcast(s, models.MessageTypeCursor, &models.CursorMessage{
			Type:           models.MessageTypeCursor,
			DocumentID:     s.DocumentID(),
			UserID:         p.UserID,
			UserName:       p.UserName,
			UserColor:      p.Color,
			CursorPosition: p.CursorPosition,
		}, conn.ID())
	})
}

func (m *SessionManager) handleContent(conn Conn, msg *models.InboundMessage) {
	binding, ok := m.registry.Binding(conn.ID())
	if !ok || msg.Content == nil {
		return
	}

	if !binding.CanEdit {
		m.router.SendTo(conn, models.MessageTypeError, models.NewErrorMessage(errNotAuthorized))
		return
	}

	content := *msg.Content
	m.sessions.With(binding.DocumentID, func(s *DocumentSession) {
		s.SetContent(content)

		m.router.Broadcast(s, models.MessageTypeContent, &models.ContentMessage{
			Type:       models.MessageTypeContent,
			DocumentID: s.DocumentID(),
			UserID:     binding.UserID,
			UserName:   binding.UserName,
			Content:    content,
		}, conn.ID())
	})
}

func (m *SessionManager) handleLeave(conn Conn) {
	m.Disconnect(conn.ID())
	conn.Close()
}
