package collab

// transformAgainst rewrites a stale batch of operations against one
// previously applied batch, shifting positions so the stale batch lands in
// the coordinates of the newer content:
//
//   - an applied insert at or before an operation's position shifts it right
//     by the inserted length. The "or before" (<=) resolves the
//     exact-position tie: text committed earlier keeps the left slot, and
//     commit order under the document lock makes that deterministic.
//   - an applied delete strictly before an operation's position shifts it
//     left by the deleted length, clamped so it never crosses the delete's
//     start.
//
// This is a last-writer-adjusts-position heuristic, not an
// intention-preserving transform; overlapping deletes simply clamp.
func transformAgainst(ops []Operation, applied []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		t := op
		if t.Type == OpInsert || t.Type == OpDelete {
			for _, b := range applied {
				switch b.Type {
				case OpInsert:
					if b.Position <= t.Position {
						t.Position += len(b.Text)
					}
				case OpDelete:
					if b.Position < t.Position {
						t.Position -= b.Length
						if t.Position < b.Position {
							t.Position = b.Position
						}
					}
				}
			}
		}
		out[i] = t
	}
	return out
}
