package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"syncServer/backend/internal/cache"
)

// cursorTTL is short on purpose: a client that stops updating (navigated
// away, crashed) vanishes from others' views without an explicit removal.
const cursorTTL = 30 * time.Second

// Position is a line/column coordinate in the editor view.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Selection is an optional highlighted range.
type Selection struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Cursor is one user's live cursor in one document. One entry per
// (document, user); every update overwrites the previous one.
type Cursor struct {
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	DocumentID string     `json:"documentId"`
	Position   Position   `json:"position"`
	Selection  *Selection `json:"selection,omitempty"`
	Color      string     `json:"color"`
	Timestamp  int64      `json:"timestamp"`
}

// Cursors tracks live cursors, pure overwrite-on-write, no history.
type Cursors struct {
	store cache.Store
	log   *slog.Logger
}

func NewCursors(store cache.Store, log *slog.Logger) *Cursors {
	return &Cursors{store: store, log: log}
}

// UpdateCursor stores cur, stamping it with the current time.
func (c *Cursors) UpdateCursor(ctx context.Context, cur Cursor) error {
	cur.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("presence: encode cursor: %w", err)
	}
	if err := c.store.Set(ctx, cache.CursorKey(cur.DocumentID, cur.UserID), b, cursorTTL); err != nil {
		return err
	}
	c.log.Debug("cursor updated", "userId", cur.UserID, "documentId", cur.DocumentID)
	return nil
}

func (c *Cursors) RemoveCursor(ctx context.Context, docID, userID string) error {
	return c.store.Del(ctx, cache.CursorKey(docID, userID))
}

// GetDocumentCursors lists the live cursors in docID.
func (c *Cursors) GetDocumentCursors(ctx context.Context, docID string) ([]Cursor, error) {
	keys, err := c.store.Keys(ctx, cache.CursorPrefix(docID))
	if err != nil {
		return nil, err
	}
	cursors := make([]Cursor, 0, len(keys))
	for _, key := range keys {
		b, err := c.store.Get(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			continue // expired between scan and read
		}
		if err != nil {
			return nil, err
		}
		var cur Cursor
		if err := json.Unmarshal(b, &cur); err != nil {
			return nil, fmt.Errorf("presence: decode cursor: %w", err)
		}
		cursors = append(cursors, cur)
	}
	return cursors, nil
}
