package models

import "encoding/json"

// MessageType is the "type" discriminator of every collaboration message.
type MessageType string

const (
	// client → server
	MessageTypeJoin  MessageType = "join"
	MessageTypeLeave MessageType = "leave"

	// server → client
	MessageTypeSync     MessageType = "sync"
	MessageTypePresence MessageType = "presence"
	MessageTypeError    MessageType = "error"

	// both directions
	MessageTypeCursor  MessageType = "cursor"
	MessageTypeContent MessageType = "content"
)

// CursorPosition represents where a user's cursor is in the document
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// InboundMessage is the union of every client → server message. Which fields
// are required depends on Type; pointers distinguish "absent" from zero values.
type InboundMessage struct {
	Type           MessageType     `json:"type"`
	DocumentID     string          `json:"documentId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	UserName       string          `json:"userName,omitempty"`
	CursorPosition *CursorPosition `json:"cursorPosition,omitempty"`
	Content        *string         `json:"content,omitempty"`
}

// ParseInbound decodes a raw websocket frame.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UserPresence is one roster entry in sync and presence messages.
type UserPresence struct {
	UserID         string          `json:"userId"`
	UserName       string          `json:"userName"`
	Color          string          `json:"color"`
	CursorPosition *CursorPosition `json:"cursorPosition"`
}

// SyncMessage is sent to a newly joined participant only.
type SyncMessage struct {
	Type       MessageType    `json:"type"`
	DocumentID string         `json:"documentId"`
	UserColor  string         `json:"userColor"`
	CanEdit    bool           `json:"canEdit"`
	Content    string         `json:"content"`
	Users      []UserPresence `json:"users"`
}

// PresenceMessage carries the full roster after a join or leave.
type PresenceMessage struct {
	Type       MessageType    `json:"type"`
	DocumentID string         `json:"documentId"`
	Users      []UserPresence `json:"users"`
}

// CursorMessage relays another participant's caret location.
type CursorMessage struct {
	Type           MessageType     `json:"type"`
	DocumentID     string          `json:"documentId"`
	UserID         string          `json:"userId"`
	UserName       string          `json:"userName"`
	UserColor      string          `json:"userColor"`
	CursorPosition *CursorPosition `json:"cursorPosition"`
}

// ContentMessage relays a new full document body.
type ContentMessage struct {
	Type       MessageType `json:"type"`
	DocumentID string      `json:"documentId"`
	UserID     string      `json:"userId"`
	UserName   string      `json:"userName"`
	Content    string      `json:"content"`
}

// ErrorMessage reports an authorization or permission failure.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewErrorMessage(message string) *ErrorMessage {
	return &ErrorMessage{Type: MessageTypeError, Message: message}
}
