package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn binds one websocket to its session. Outbound messages go through a
// buffered channel drained by writeLoop; a slow consumer loses messages
// rather than stalling the broadcaster.
type Conn struct {
	ws   *websocket.Conn
	send chan OutboundMessage
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

func newConn(wsc *websocket.Conn, log *slog.Logger) *Conn {
	return &Conn{
		ws:   wsc,
		send: make(chan OutboundMessage, 32),
		done: make(chan struct{}),
		log:  log,
	}
}

// Enqueue queues msg for delivery. Drops when the buffer is full or the
// connection is shutting down.
func (c *Conn) Enqueue(msg OutboundMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", "error", err)
			}
		case <-c.done:
			return
		}
	}
}

// readLoop blocks until the socket closes or the session demands a
// disconnect (failed authentication).
func (c *Conn) readLoop(ctx context.Context, s *Session) {
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.log.Debug("read failed", "error", err)
			return
		}
		if !s.HandleEvent(ctx, msg) {
			return
		}
	}
}

func (c *Conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}
