package collab

// Operation kinds, wire-compatible with the editor clients.
const (
	OpInsert = "insert"
	OpDelete = "delete"
	OpRetain = "retain"
)

// Operation is one atomic edit against a flat text buffer. Position is a
// 0-based byte offset into the content.
type Operation struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Text     string `json:"text,omitempty"`
	Length   int    `json:"length,omitempty"`
}

// AppliedChange is a batch of operations one user submitted against the
// version they believed was current. After ApplyChange, Version is the
// version the batch produced.
type AppliedChange struct {
	DocumentID string      `json:"documentId"`
	UserID     string      `json:"userId"`
	Operations []Operation `json:"operations"`
	Version    uint64      `json:"version"`
	Timestamp  int64       `json:"timestamp"`
}

// DocumentState is the working copy of one document. Version starts at 0
// and increases by exactly 1 per applied change.
type DocumentState struct {
	DocumentID   string `json:"documentId"`
	Version      uint64 `json:"version"`
	Content      string `json:"content"`
	LastModified int64  `json:"lastModified"`
}

// applyOperations splices ops into content in order. Out-of-range positions
// and lengths are clamped rather than rejected so a malformed operation can
// never leave the document unrecoverable.
func applyOperations(content string, ops []Operation) string {
	for _, op := range ops {
		switch op.Type {
		case OpInsert:
			pos := clamp(op.Position, 0, len(content))
			content = content[:pos] + op.Text + content[pos:]
		case OpDelete:
			pos := clamp(op.Position, 0, len(content))
			end := clamp(pos+op.Length, pos, len(content))
			content = content[:pos] + content[end:]
		case OpRetain:
			// placeholder, no effect on content
		}
	}
	return content
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
