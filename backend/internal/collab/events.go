package collab

// EventChangeApplied tags ChangeEvent payloads on the doc-ops topic.
const EventChangeApplied = "CHANGE_APPLIED"

// ChangeEvent is the fan-out record published after a change commits,
// keyed by DocumentID so one document's events stay in one partition.
type ChangeEvent struct {
	EventType  string      `json:"eventType"`
	DocumentID string      `json:"documentId"`
	UserID     string      `json:"userId"`
	Version    uint64      `json:"version"`
	Operations []Operation `json:"operations"`
	AppliedAt  int64       `json:"appliedAt"`
}
