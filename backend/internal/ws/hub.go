package ws

import "sync"

// Client receives outbound messages. *Conn in production; tests use fakes
// so the protocol runs without a socket.
type Client interface {
	Enqueue(msg OutboundMessage)
}

// Hub scopes broadcasts to the set of connections viewing one document.
// Rooms hold connections, not user ids: one user may have several tabs.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Client]struct{})}
}

func (h *Hub) Join(docID string, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[Client]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

func (h *Hub) Leave(docID string, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// Broadcast sends msg to every connection in the room.
func (h *Hub) Broadcast(docID string, msg OutboundMessage) {
	h.BroadcastExcept(docID, nil, msg)
}

// BroadcastExcept sends msg to every connection in the room but except.
func (h *Hub) BroadcastExcept(docID string, except Client, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]Client, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Enqueue(msg)
	}
}
