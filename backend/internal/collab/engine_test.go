package collab

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"syncServer/backend/internal/cache"
)

func newTestEngine(t *testing.T) (*Engine, cache.Store) {
	t.Helper()
	store := cache.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, logger, nil), store
}

func TestEngine_LazyInit(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	state, err := e.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), state.Version)
	require.Equal(t, "", state.Content)
	require.Equal(t, "doc-1", state.DocumentID)
}

func TestEngine_ApplyChange_MonotonicVersions(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		applied, err := e.ApplyChange(ctx, AppliedChange{
			DocumentID: "doc-1",
			UserID:     "u1",
			Operations: []Operation{{Type: OpInsert, Position: i, Text: "a"}},
			Version:    uint64(i),
		})
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), applied.Version)
	}

	state, err := e.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, uint64(5), state.Version)
	require.Equal(t, "aaaaa", state.Content)
}

func TestEngine_ApplyChange_StaleSubmissionTransformed(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// Seed "Hello" at version 1.
	_, err := e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "u1",
		Operations: []Operation{{Type: OpInsert, Position: 0, Text: "Hello"}},
		Version:    0,
	})
	require.NoError(t, err)

	// A commits "!" at position 5 against version 1.
	_, err = e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "a",
		Operations: []Operation{{Type: OpInsert, Position: 5, Text: "!"}},
		Version:    1,
	})
	require.NoError(t, err)

	// B still believes version 1 and inserts " World" at position 5.
	applied, err := e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "b",
		Operations: []Operation{{Type: OpInsert, Position: 5, Text: " World"}},
		Version:    1,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(3), applied.Version)
	require.Equal(t, 6, applied.Operations[0].Position)

	state, err := e.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "Hello! World", state.Content)
}

// The empty-document scenario: insert "ab" at version 0, then a stale
// delete of 1 char at position 0 still believing version 0. The shift rule
// moves the delete past the insert, the apply step clamps it away, and the
// content survives as "ab" at version 2.
func TestEngine_ApplyChange_StaleDeleteClampsToNoop(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	applied, err := e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "u1",
		Operations: []Operation{{Type: OpInsert, Position: 0, Text: "ab"}},
		Version:    0,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), applied.Version)

	applied, err = e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "u2",
		Operations: []Operation{{Type: OpDelete, Position: 0, Length: 1}},
		Version:    0,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), applied.Version)
	require.Equal(t, 2, applied.Operations[0].Position)

	state, err := e.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "ab", state.Content)
}

// notFoundOnce reports the document missing on the first read, as if the
// key appeared between a reader's Get and its initial write.
type notFoundOnce struct {
	cache.Store
	hit bool
}

func (s *notFoundOnce) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.hit && strings.HasPrefix(key, "doc:version:") {
		s.hit = true
		return nil, cache.ErrNotFound
	}
	return s.Store.Get(ctx, key)
}

// A lockless read racing the first commit must not reset the document back
// to version 0.
func TestEngine_GetDocumentState_InitLosesRaceToCommit(t *testing.T) {
	store := cache.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := NewEngine(store, logger, nil)
	ctx := context.Background()

	_, err := writer.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "u1",
		Operations: []Operation{{Type: OpInsert, Position: 0, Text: "x"}},
		Version:    0,
	})
	require.NoError(t, err)

	reader := NewEngine(&notFoundOnce{Store: store}, logger, nil)
	state, err := reader.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), state.Version)
	require.Equal(t, "x", state.Content)

	// The committed state survived the racing init attempt.
	after, err := writer.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), after.Version)
	require.Equal(t, "x", after.Content)
}

func TestEngine_ApplyChange_VersionAheadRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "u1",
		Operations: []Operation{{Type: OpInsert, Position: 0, Text: "x"}},
		Version:    7,
	})
	require.ErrorIs(t, err, ErrVersionAhead)

	// The failed attempt left the document untouched.
	state, err := e.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), state.Version)
	require.Equal(t, "", state.Content)
}

func TestEngine_ApplyChange_DocumentLocked(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	// Another holder owns the lock for longer than the retry budget.
	ok, err := store.SetNX(ctx, cache.DocLockKey("doc-1"), []byte("1"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "u1",
		Operations: []Operation{{Type: OpInsert, Position: 0, Text: "x"}},
		Version:    0,
	})
	require.ErrorIs(t, err, ErrDocumentLocked)
}

func TestEngine_ApplyChange_LockReleasedAfterError(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ApplyChange(ctx, AppliedChange{
		DocumentID: "doc-1", UserID: "u1", Version: 9,
	})
	require.ErrorIs(t, err, ErrVersionAhead)

	// The lock must not survive the failed call.
	ok, err := store.SetNX(ctx, cache.DocLockKey("doc-1"), []byte("1"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

// If the lock TTL expires mid-write and another writer takes it over,
// release must leave the successor's lock alone.
func TestEngine_LockReleaseOwnerScoped(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	key := cache.DocLockKey("doc-1")

	token, err := e.acquireLock(ctx, key)
	require.NoError(t, err)
	held, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, token, string(held))

	require.NoError(t, store.Set(ctx, key, []byte("successor"), 0))
	e.releaseLock(ctx, key, token)
	held, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "successor", string(held))

	e.releaseLock(ctx, key, "successor")
	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestEngine_GetChangesSince(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := e.ApplyChange(ctx, AppliedChange{
			DocumentID: "doc-1", UserID: "u1",
			Operations: []Operation{{Type: OpInsert, Position: 0, Text: "x"}},
			Version:    uint64(i),
		})
		require.NoError(t, err)
	}

	changes, err := e.GetChangesSince(ctx, "doc-1", 2)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, uint64(3), changes[0].Version)
	require.Equal(t, uint64(4), changes[1].Version)
}

// Concurrent submitters against one document: every change lands, versions
// stay gapless and the content reflects every insert exactly once.
func TestEngine_ApplyChange_ConcurrentWriters(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	const writers = 4

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			change := AppliedChange{
				DocumentID: "doc-1", UserID: "u",
				Operations: []Operation{{Type: OpInsert, Position: 0, Text: "x"}},
				Version:    0,
			}
			// The engine reports contention; retrying is the caller's job.
			for {
				_, err := e.ApplyChange(ctx, change)
				if err == nil {
					return
				}
				if !errors.Is(err, ErrDocumentLocked) {
					t.Errorf("ApplyChange error: %v", err)
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	state, err := e.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, uint64(writers), state.Version)
	require.Equal(t, "xxxx", state.Content)
}
