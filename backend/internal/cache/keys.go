package cache

import "fmt"

// Key layout:
// - DocKey(docID):               working copy (JSON DocumentState)
// - DocOpsKey(docID):            bounded list of applied changes (JSON)
// - DocLockKey(docID):           write lock (SETNX with short TTL)
// - PresenceKey(userID):         presence entry (JSON, TTL)
// - PresenceDocKey(docID):       per-document membership set (TTL-refreshed)
// - CursorKey(docID, userID):    cursor entry (JSON, short TTL)

const (
	keyDocFmt         = "doc:version:%s"
	keyDocOpsFmt      = "doc:ops:%s"
	keyDocLockFmt     = "lock:%s"
	keyPresenceFmt    = "presence:%s"
	keyPresenceDocFmt = "presence:doc:%s"
	keyCursorFmt      = "cursor:%s:%s"

	// PresencePrefix scans all presence entries. Keys under
	// PresenceDocPrefix share it and must be filtered out by the caller.
	PresencePrefix    = "presence:"
	PresenceDocPrefix = "presence:doc:"
)

func DocKey(docID string) string { return fmt.Sprintf(keyDocFmt, docID) }

func DocOpsKey(docID string) string { return fmt.Sprintf(keyDocOpsFmt, docID) }

func DocLockKey(docID string) string { return fmt.Sprintf(keyDocLockFmt, docID) }

func PresenceKey(userID string) string { return fmt.Sprintf(keyPresenceFmt, userID) }

func PresenceDocKey(docID string) string { return fmt.Sprintf(keyPresenceDocFmt, docID) }

func CursorKey(docID, userID string) string { return fmt.Sprintf(keyCursorFmt, docID, userID) }

func CursorPrefix(docID string) string { return fmt.Sprintf("cursor:%s:", docID) }
