package ws

import (
	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/presence"
)

// Inbound event types.
const (
	EvAuthenticate  = "authenticate"
	EvJoinDocument  = "join_document"
	EvLeaveDocument = "leave_document"
	EvCursorUpdate  = "cursor_update"
	EvOperation     = "operation"
	EvTypingStart   = "typing_start"
	EvTypingStop    = "typing_stop"
	EvHeartbeat     = "heartbeat"
	EvStatusUpdate  = "status_update"
)

// Outbound event types. EvCursorUpdate and EvOperation are reused as
// broadcast forms.
const (
	EvAuthenticated     = "authenticated"
	EvDocumentState     = "document_state"
	EvUserJoined        = "user_joined"
	EvUserLeft          = "user_left"
	EvOperationAck      = "operation_ack"
	EvOperationError    = "operation_error"
	EvUserTyping        = "user_typing"
	EvUserStoppedTyping = "user_stopped_typing"
	EvUserStatusChanged = "user_status_changed"
	EvError             = "error"
)

// ClientMessage is the single inbound envelope; fields are read per Type.
type ClientMessage struct {
	Type       string              `json:"type"`
	Token      string              `json:"token,omitempty"`
	UserName   string              `json:"userName,omitempty"`
	DocumentID string              `json:"documentId,omitempty"`
	Position   *presence.Position  `json:"position,omitempty"`
	Selection  *presence.Selection `json:"selection,omitempty"`
	Color      string              `json:"color,omitempty"`
	Operations []collab.Operation  `json:"operations,omitempty"`
	Version    uint64              `json:"version"`
	Status     string              `json:"status,omitempty"`
}

// OutboundMessage is anything a session can push to a client.
type OutboundMessage interface {
	EventType() string
}

// ServerMessage carries the small outbound events (authenticated, errors,
// user_joined/left, typing, status changes).
type ServerMessage struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	Status   string `json:"status,omitempty"`
}

// DocumentStateMessage is the snapshot a client receives on join.
type DocumentStateMessage struct {
	Type     string            `json:"type"`
	Version  uint64            `json:"version"`
	Content  string            `json:"content"`
	Presence []presence.Entry  `json:"presence"`
	Cursors  []presence.Cursor `json:"cursors"`
}

// OperationAckMessage acknowledges the submitter with the corrected version.
type OperationAckMessage struct {
	Type      string `json:"type"`
	Version   uint64 `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// OperationMessage is the broadcast form of a committed change.
type OperationMessage struct {
	Type       string             `json:"type"`
	DocumentID string             `json:"documentId"`
	UserID     string             `json:"userId"`
	Operations []collab.Operation `json:"operations"`
	Version    uint64             `json:"version"`
	Timestamp  int64              `json:"timestamp"`
}

// CursorMessage is the broadcast form of a cursor update.
type CursorMessage struct {
	Type string `json:"type"`
	presence.Cursor
}

func (m ServerMessage) EventType() string        { return m.Type }
func (m DocumentStateMessage) EventType() string { return m.Type }
func (m OperationAckMessage) EventType() string  { return m.Type }
func (m OperationMessage) EventType() string     { return m.Type }
func (m CursorMessage) EventType() string        { return m.Type }
