package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"syncServer/backend/internal/cache"
)

var (
	// ErrDocumentLocked means another writer holds the document lock and
	// the retry budget ran out. Retryable by the submitting client.
	ErrDocumentLocked = errors.New("collab: document locked")
	// ErrVersionAhead means the submitted version is greater than the
	// document's, which cannot happen under correct client behavior.
	ErrVersionAhead = errors.New("collab: submitted version ahead of document")
)

const (
	lockTTL      = 5 * time.Second
	lockAttempts = 3
	lockBackoff  = 50 * time.Millisecond

	// historyLimit bounds the per-document log of applied changes.
	historyLimit = 1000
)

// Engine owns document version, content and the bounded history of applied
// changes. Writers are serialized through a store-level lock so multiple
// instances can host editors of the same document.
type Engine struct {
	store      cache.Store
	log        *slog.Logger
	dispatcher *Dispatcher // optional fan-out of committed changes
}

func NewEngine(store cache.Store, log *slog.Logger, dispatcher *Dispatcher) *Engine {
	return &Engine{store: store, log: log, dispatcher: dispatcher}
}

// ApplyChange commits one change under the document lock. A stale
// submission is first transformed against every change applied since the
// version it was based on. The returned change carries the version it
// produced and its (possibly transformed) operations, ready to broadcast.
func (e *Engine) ApplyChange(ctx context.Context, change AppliedChange) (AppliedChange, error) {
	lockKey := cache.DocLockKey(change.DocumentID)
	token, err := e.acquireLock(ctx, lockKey)
	if err != nil {
		return AppliedChange{}, err
	}
	// Release must run even on error paths; losing it only costs the lock
	// TTL.
	defer e.releaseLock(context.WithoutCancel(ctx), lockKey, token)

	state, err := e.GetDocumentState(ctx, change.DocumentID)
	if err != nil {
		return AppliedChange{}, err
	}

	if change.Version > state.Version {
		return AppliedChange{}, ErrVersionAhead
	}
	if change.Version < state.Version {
		prior, err := e.GetChangesSince(ctx, change.DocumentID, change.Version)
		if err != nil {
			return AppliedChange{}, err
		}
		for _, p := range prior {
			change.Operations = transformAgainst(change.Operations, p.Operations)
		}
	}

	state.Content = applyOperations(state.Content, change.Operations)
	state.Version++
	state.LastModified = time.Now().UnixMilli()

	change.Version = state.Version
	change.Timestamp = state.LastModified

	if err := e.saveState(ctx, state); err != nil {
		return AppliedChange{}, err
	}
	if err := e.appendChange(ctx, change); err != nil {
		return AppliedChange{}, err
	}

	e.log.Debug("change applied",
		"documentId", change.DocumentID, "userId", change.UserID, "version", change.Version)

	if e.dispatcher != nil {
		e.dispatcher.Enqueue(ChangeEvent{
			EventType:  EventChangeApplied,
			DocumentID: change.DocumentID,
			UserID:     change.UserID,
			Version:    change.Version,
			Operations: change.Operations,
			AppliedAt:  change.Timestamp,
		})
	}

	return change, nil
}

// GetDocumentState loads the working copy, lazily initializing a new
// document at version 0 with empty content.
func (e *Engine) GetDocumentState(ctx context.Context, docID string) (DocumentState, error) {
	b, err := e.store.Get(ctx, cache.DocKey(docID))
	if errors.Is(err, cache.ErrNotFound) {
		return e.initDocument(ctx, docID)
	}
	if err != nil {
		return DocumentState{}, err
	}
	var state DocumentState
	if err := json.Unmarshal(b, &state); err != nil {
		return DocumentState{}, fmt.Errorf("collab: decode document state: %w", err)
	}
	return state, nil
}

// initDocument writes the version-0 state conditionally: GetDocumentState
// is also called on lockless read paths, and an unconditional write racing
// the first commit could reset a document that already advanced.
func (e *Engine) initDocument(ctx context.Context, docID string) (DocumentState, error) {
	state := DocumentState{
		DocumentID:   docID,
		Version:      0,
		Content:      "",
		LastModified: time.Now().UnixMilli(),
	}
	b, err := json.Marshal(state)
	if err != nil {
		return DocumentState{}, fmt.Errorf("collab: encode document state: %w", err)
	}
	ok, err := e.store.SetNX(ctx, cache.DocKey(docID), b, 0)
	if err != nil {
		return DocumentState{}, err
	}
	if ok {
		return state, nil
	}
	// Lost the init race; a writer committed first.
	cur, err := e.store.Get(ctx, cache.DocKey(docID))
	if err != nil {
		return DocumentState{}, err
	}
	if err := json.Unmarshal(cur, &state); err != nil {
		return DocumentState{}, fmt.Errorf("collab: decode document state: %w", err)
	}
	return state, nil
}

// GetChangesSince returns applied changes with version strictly greater
// than version, in ascending version order. Only the bounded history is
// visible; anything older has been trimmed.
func (e *Engine) GetChangesSince(ctx context.Context, docID string, version uint64) ([]AppliedChange, error) {
	raw, err := e.store.LRange(ctx, cache.DocOpsKey(docID), 0, -1)
	if err != nil {
		return nil, err
	}
	var out []AppliedChange
	for _, b := range raw {
		var c AppliedChange
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("collab: decode applied change: %w", err)
		}
		if c.Version > version {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) saveState(ctx context.Context, state DocumentState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("collab: encode document state: %w", err)
	}
	return e.store.Set(ctx, cache.DocKey(state.DocumentID), b, 0)
}

func (e *Engine) appendChange(ctx context.Context, change AppliedChange) error {
	b, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("collab: encode applied change: %w", err)
	}
	key := cache.DocOpsKey(change.DocumentID)
	if err := e.store.RPush(ctx, key, b); err != nil {
		return err
	}
	return e.store.LTrim(ctx, key, -historyLimit, -1)
}

// acquireLock takes the per-document SETNX lock with a bounded retry
// budget and returns the token identifying this acquisition. The short TTL
// bounds staleness if a holder crashes mid-write.
func (e *Engine) acquireLock(ctx context.Context, lockKey string) (string, error) {
	token := uuid.NewString()
	backoff := lockBackoff
	for attempt := 0; attempt < lockAttempts; attempt++ {
		ok, err := e.store.SetNX(ctx, lockKey, []byte(token), lockTTL)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if attempt == lockAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
	}
	return "", ErrDocumentLocked
}

// releaseLock deletes the lock only while this acquisition's token still
// holds it. If the TTL expired mid-write and a successor took the lock
// over, it is theirs to release.
func (e *Engine) releaseLock(ctx context.Context, lockKey, token string) {
	b, err := e.store.Get(ctx, lockKey)
	if errors.Is(err, cache.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.Error("release document lock failed", "key", lockKey, "error", err)
		return
	}
	if string(b) != token {
		return
	}
	if err := e.store.Del(ctx, lockKey); err != nil {
		e.log.Error("release document lock failed", "key", lockKey, "error", err)
	}
}
