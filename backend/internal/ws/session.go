package ws

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"syncServer/backend/internal/auth"
	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/presence"
)

// Session states. A connection starts Unauthenticated; disconnect is
// terminal from any state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateInDocument
)

// Session is the per-connection protocol state machine. Its read loop
// delivers events one at a time, so no locking is needed on session state;
// the only blocking it does is store round-trips.
type Session struct {
	id         string
	state      State
	userID     string
	userName   string
	documentID string

	hub      *Hub
	engine   *collab.Engine
	registry *presence.Registry
	cursors  *presence.Cursors
	client   Client
	log      *slog.Logger
}

func NewSession(hub *Hub, engine *collab.Engine, registry *presence.Registry, cursors *presence.Cursors, client Client, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		state:    StateUnauthenticated,
		hub:      hub,
		engine:   engine,
		registry: registry,
		cursors:  cursors,
		client:   client,
		log:      log.With("connId", id),
	}
}

// HandleEvent dispatches one inbound event. It returns false when the
// connection must be dropped (failed authentication).
func (s *Session) HandleEvent(ctx context.Context, msg ClientMessage) bool {
	switch msg.Type {
	case EvAuthenticate:
		return s.handleAuthenticate(ctx, msg)
	case EvJoinDocument:
		s.handleJoinDocument(ctx, msg.DocumentID)
	case EvLeaveDocument:
		s.handleLeaveDocument(ctx)
	case EvCursorUpdate:
		s.handleCursorUpdate(ctx, msg)
	case EvOperation:
		s.handleOperation(ctx, msg)
	case EvTypingStart:
		s.handleTyping(EvUserTyping)
	case EvTypingStop:
		s.handleTyping(EvUserStoppedTyping)
	case EvHeartbeat:
		s.handleHeartbeat(ctx)
	case EvStatusUpdate:
		s.handleStatusUpdate(ctx, msg.Status)
	default:
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "unknown event type"})
	}
	return true
}

// Close runs the disconnect effects: leave the room if in one, then drop
// presence entirely. Safe to call from any state.
func (s *Session) Close(ctx context.Context) {
	if s.state == StateInDocument {
		s.leaveEffects(ctx)
	}
	if s.state != StateUnauthenticated {
		if err := s.registry.RemovePresence(ctx, s.userID, ""); err != nil {
			s.log.Error("remove presence on disconnect failed", "userId", s.userID, "error", err)
		}
	}
	s.log.Info("session closed", "userId", s.userID)
	s.state = StateUnauthenticated
}

func (s *Session) handleAuthenticate(ctx context.Context, msg ClientMessage) bool {
	if s.state != StateUnauthenticated {
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "already authenticated"})
		return true
	}
	userID, err := auth.Identify(msg.Token)
	if err != nil {
		s.log.Warn("authentication failed", "error", err)
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "invalid token"})
		return false
	}
	s.userID = userID
	s.userName = msg.UserName
	if err := s.registry.SetPresence(ctx, userID, msg.UserName, ""); err != nil {
		s.log.Error("set presence failed", "userId", userID, "error", err)
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "authentication failed"})
		return false
	}
	s.state = StateAuthenticated
	s.client.Enqueue(ServerMessage{Type: EvAuthenticated, UserID: userID})
	s.log.Info("client authenticated", "userId", userID)
	return true
}

func (s *Session) handleJoinDocument(ctx context.Context, docID string) {
	if s.state == StateUnauthenticated {
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "not authenticated"})
		return
	}
	if docID == "" {
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "missing documentId"})
		return
	}
	if s.state == StateInDocument {
		s.leaveEffects(ctx)
		s.state = StateAuthenticated
	}

	if err := s.registry.SetPresence(ctx, s.userID, s.userName, docID); err != nil {
		s.log.Error("join: set presence failed", "documentId", docID, "error", err)
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "failed to join document"})
		return
	}

	state, err := s.engine.GetDocumentState(ctx, docID)
	if err != nil {
		s.log.Error("join: load document failed", "documentId", docID, "error", err)
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "failed to join document"})
		return
	}
	members, err := s.registry.GetDocumentPresence(ctx, docID)
	if err != nil {
		s.log.Error("join: load presence failed", "documentId", docID, "error", err)
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "failed to join document"})
		return
	}
	cursors, err := s.cursors.GetDocumentCursors(ctx, docID)
	if err != nil {
		s.log.Error("join: load cursors failed", "documentId", docID, "error", err)
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "failed to join document"})
		return
	}

	s.documentID = docID
	s.state = StateInDocument
	s.hub.Join(docID, s.client)

	s.client.Enqueue(DocumentStateMessage{
		Type:     EvDocumentState,
		Version:  state.Version,
		Content:  state.Content,
		Presence: members,
		Cursors:  cursors,
	})
	s.hub.BroadcastExcept(docID, s.client, ServerMessage{
		Type:     EvUserJoined,
		UserID:   s.userID,
		UserName: s.userName,
	})
	s.log.Info("user joined document", "userId", s.userID, "documentId", docID)
}

func (s *Session) handleLeaveDocument(ctx context.Context) {
	if s.state != StateInDocument {
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "not in a document"})
		return
	}
	s.leaveEffects(ctx)
	s.state = StateAuthenticated
}

// leaveEffects removes the connection from its room, drops the cursor and
// membership, and tells the rest of the room. Does not change state.
func (s *Session) leaveEffects(ctx context.Context) {
	docID := s.documentID
	s.hub.Leave(docID, s.client)
	if err := s.cursors.RemoveCursor(ctx, docID, s.userID); err != nil {
		s.log.Error("remove cursor failed", "documentId", docID, "error", err)
	}
	if err := s.registry.ClearDocument(ctx, s.userID, docID); err != nil {
		s.log.Error("clear document membership failed", "documentId", docID, "error", err)
	}
	s.hub.Broadcast(docID, ServerMessage{Type: EvUserLeft, UserID: s.userID})
	s.documentID = ""
	s.log.Info("user left document", "userId", s.userID, "documentId", docID)
}

func (s *Session) handleCursorUpdate(ctx context.Context, msg ClientMessage) {
	if s.state != StateInDocument {
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "not in a document"})
		return
	}
	color := msg.Color
	if color == "" {
		color = presence.ColorFor(s.userID)
	}
	cur := presence.Cursor{
		UserID:     s.userID,
		UserName:   s.userName,
		DocumentID: s.documentID,
		Color:      color,
		Selection:  msg.Selection,
	}
	if msg.Position != nil {
		cur.Position = *msg.Position
	}
	if err := s.cursors.UpdateCursor(ctx, cur); err != nil {
		s.log.Error("update cursor failed", "documentId", s.documentID, "error", err)
		return
	}
	s.hub.BroadcastExcept(s.documentID, s.client, CursorMessage{Type: EvCursorUpdate, Cursor: cur})
}

func (s *Session) handleOperation(ctx context.Context, msg ClientMessage) {
	if s.state != StateInDocument {
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "not in a document"})
		return
	}
	change := collab.AppliedChange{
		DocumentID: s.documentID,
		UserID:     s.userID,
		Operations: msg.Operations,
		Version:    msg.Version,
	}
	applied, err := s.engine.ApplyChange(ctx, change)
	if err != nil {
		// Failures are the submitter's business only; the room never sees
		// another user's transient errors.
		s.log.Warn("apply change failed",
			"documentId", s.documentID, "userId", s.userID, "error", err)
		s.client.Enqueue(ServerMessage{Type: EvOperationError, Message: operationErrorMessage(err)})
		return
	}
	s.client.Enqueue(OperationAckMessage{
		Type:      EvOperationAck,
		Version:   applied.Version,
		Timestamp: applied.Timestamp,
	})
	s.hub.BroadcastExcept(s.documentID, s.client, OperationMessage{
		Type:       EvOperation,
		DocumentID: applied.DocumentID,
		UserID:     applied.UserID,
		Operations: applied.Operations,
		Version:    applied.Version,
		Timestamp:  applied.Timestamp,
	})
}

func operationErrorMessage(err error) string {
	switch {
	case errors.Is(err, collab.ErrDocumentLocked):
		return "document is locked, retry"
	case errors.Is(err, collab.ErrVersionAhead):
		return "submitted version is ahead of the document"
	default:
		return "failed to apply operation"
	}
}

func (s *Session) handleTyping(event string) {
	if s.state != StateInDocument {
		return
	}
	msg := ServerMessage{Type: event, UserID: s.userID}
	if event == EvUserTyping {
		msg.UserName = s.userName
	}
	s.hub.BroadcastExcept(s.documentID, s.client, msg)
}

func (s *Session) handleHeartbeat(ctx context.Context) {
	if s.state == StateUnauthenticated {
		return
	}
	if err := s.registry.Heartbeat(ctx, s.userID); err != nil {
		s.log.Error("heartbeat failed", "userId", s.userID, "error", err)
	}
}

func (s *Session) handleStatusUpdate(ctx context.Context, status string) {
	if s.state == StateUnauthenticated {
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "not authenticated"})
		return
	}
	switch status {
	case presence.StatusOnline, presence.StatusAway, presence.StatusOffline:
	default:
		s.client.Enqueue(ServerMessage{Type: EvError, Message: "unknown status"})
		return
	}
	if err := s.registry.UpdateStatus(ctx, s.userID, status); err != nil {
		s.log.Error("update status failed", "userId", s.userID, "error", err)
		return
	}
	if s.state == StateInDocument {
		s.hub.BroadcastExcept(s.documentID, s.client, ServerMessage{
			Type:   EvUserStatusChanged,
			UserID: s.userID,
			Status: status,
		})
	}
}
