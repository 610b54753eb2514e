package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/presence"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Some clients send no Origin, or "null" from sandboxed frames.
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

// Manager upgrades HTTP requests and runs a session per connection.
type Manager struct {
	hub      *Hub
	engine   *collab.Engine
	registry *presence.Registry
	cursors  *presence.Cursors
	log      *slog.Logger
}

func NewManager(hub *Hub, engine *collab.Engine, registry *presence.Registry, cursors *presence.Cursors, log *slog.Logger) *Manager {
	return &Manager{hub: hub, engine: engine, registry: registry, cursors: cursors, log: log}
}

// WebSocketConnect is the gin handler for the collaboration endpoint.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	wsc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed",
			"error", err, "origin", c.Request.Header.Get("Origin"))
		return
	}
	defer wsc.Close()

	conn := newConn(wsc, m.log)
	sess := NewSession(m.hub, m.engine, m.registry, m.cursors, conn, m.log)

	go conn.writeLoop()
	conn.readLoop(c.Request.Context(), sess)

	// The request context may already be gone; disconnect effects must
	// still reach the store.
	sess.Close(context.WithoutCancel(c.Request.Context()))
	conn.shutdown()
}
