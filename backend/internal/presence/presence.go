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

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// DefaultWindow is the liveness window: an entry not refreshed within it is
// logically absent even if its key has not expired yet.
const DefaultWindow = 60 * time.Second

// ttlMargin keeps the raw key alive slightly past the window so the sweeper
// (not key expiry) decides logical liveness.
const ttlMargin = 10 * time.Second

// Entry is one user's ephemeral presence record.
type Entry struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	Status     string `json:"status"`
	LastSeen   int64  `json:"lastSeen"`
	DocumentID string `json:"documentId,omitempty"`
	Color      string `json:"color,omitempty"`
}

// Registry tracks which users are in which documents and whether they are
// still alive. Every write refreshes the entry's TTL.
type Registry struct {
	store  cache.Store
	log    *slog.Logger
	window time.Duration
}

func NewRegistry(store cache.Store, log *slog.Logger, window time.Duration) *Registry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Registry{store: store, log: log, window: window}
}

// Window reports the liveness window the registry filters against.
func (r *Registry) Window() time.Duration { return r.window }

// SetPresence records a user online, optionally inside a document. With a
// docID it also adds the user to the document's membership set; a user is
// in at most one document's set, so any previous membership is dropped.
func (r *Registry) SetPresence(ctx context.Context, userID, userName, docID string) error {
	prev, ok, err := r.GetPresence(ctx, userID)
	if err != nil {
		return err
	}
	if ok && prev.DocumentID != "" && prev.DocumentID != docID {
		if err := r.store.SRem(ctx, cache.PresenceDocKey(prev.DocumentID), userID); err != nil {
			return err
		}
	}

	entry := Entry{
		UserID:     userID,
		UserName:   userName,
		Status:     StatusOnline,
		LastSeen:   time.Now().UnixMilli(),
		DocumentID: docID,
		Color:      ColorFor(userID),
	}
	if err := r.save(ctx, entry); err != nil {
		return err
	}

	if docID != "" {
		setKey := cache.PresenceDocKey(docID)
		if err := r.store.SAdd(ctx, setKey, userID); err != nil {
			return err
		}
		if err := r.store.Expire(ctx, setKey, r.window+ttlMargin); err != nil {
			return err
		}
	}

	r.log.Debug("presence updated", "userId", userID, "documentId", docID)
	return nil
}

// RemovePresence deletes the user's entry and, when docID is given, their
// document membership.
func (r *Registry) RemovePresence(ctx context.Context, userID, docID string) error {
	if err := r.store.Del(ctx, cache.PresenceKey(userID)); err != nil {
		return err
	}
	if docID != "" {
		if err := r.store.SRem(ctx, cache.PresenceDocKey(docID), userID); err != nil {
			return err
		}
	}
	r.log.Debug("presence removed", "userId", userID, "documentId", docID)
	return nil
}

// ClearDocument drops the user's membership in docID while keeping them
// present (used on leave_document: the user is still online, just roomless).
func (r *Registry) ClearDocument(ctx context.Context, userID, docID string) error {
	if err := r.store.SRem(ctx, cache.PresenceDocKey(docID), userID); err != nil {
		return err
	}
	entry, ok, err := r.GetPresence(ctx, userID)
	if err != nil || !ok {
		return err
	}
	entry.DocumentID = ""
	entry.LastSeen = time.Now().UnixMilli()
	return r.save(ctx, entry)
}

// GetPresence returns the user's entry; ok is false when absent or expired.
func (r *Registry) GetPresence(ctx context.Context, userID string) (Entry, bool, error) {
	b, err := r.store.Get(ctx, cache.PresenceKey(userID))
	if errors.Is(err, cache.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(b, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("presence: decode entry: %w", err)
	}
	return entry, true, nil
}

// GetDocumentPresence lists the document's members whose lastSeen is inside
// the liveness window. Members whose entry is gone or stale are skipped;
// the sweeper deletes them for real.
func (r *Registry) GetDocumentPresence(ctx context.Context, docID string) ([]Entry, error) {
	userIDs, err := r.store.SMembers(ctx, cache.PresenceDocKey(docID))
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	entries := make([]Entry, 0, len(userIDs))
	for _, userID := range userIDs {
		entry, ok, err := r.GetPresence(ctx, userID)
		if err != nil {
			return nil, err
		}
		if ok && now-entry.LastSeen < r.window.Milliseconds() {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// UpdateStatus changes the user's status and refreshes liveness. Unknown
// users are ignored.
func (r *Registry) UpdateStatus(ctx context.Context, userID, status string) error {
	entry, ok, err := r.GetPresence(ctx, userID)
	if err != nil || !ok {
		return err
	}
	entry.Status = status
	entry.LastSeen = time.Now().UnixMilli()
	return r.save(ctx, entry)
}

// Heartbeat refreshes liveness without touching status.
func (r *Registry) Heartbeat(ctx context.Context, userID string) error {
	entry, ok, err := r.GetPresence(ctx, userID)
	if err != nil || !ok {
		return err
	}
	entry.LastSeen = time.Now().UnixMilli()
	return r.save(ctx, entry)
}

func (r *Registry) save(ctx context.Context, entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("presence: encode entry: %w", err)
	}
	return r.store.Set(ctx, cache.PresenceKey(entry.UserID), b, r.window+ttlMargin)
}
