package collab

import (
	"reflect"
	"testing"
)

func TestTransformAgainst_InsertShiftsRight(t *testing.T) {
	ops := []Operation{{Type: OpInsert, Position: 3, Text: "x"}}
	applied := []Operation{{Type: OpInsert, Position: 1, Text: "ab"}}

	got := transformAgainst(ops, applied)
	if got[0].Position != 5 {
		t.Fatalf("position = %d, want 5", got[0].Position)
	}
}

func TestTransformAgainst_InsertAfterDoesNotShift(t *testing.T) {
	ops := []Operation{{Type: OpInsert, Position: 2, Text: "x"}}
	applied := []Operation{{Type: OpInsert, Position: 5, Text: "abc"}}

	got := transformAgainst(ops, applied)
	if got[0].Position != 2 {
		t.Fatalf("position = %d, want 2", got[0].Position)
	}
}

func TestTransformAgainst_ExactPositionTie(t *testing.T) {
	// Earlier-committed text keeps the left slot: an insert at the same
	// position shifts right past it.
	ops := []Operation{{Type: OpInsert, Position: 5, Text: " World"}}
	applied := []Operation{{Type: OpInsert, Position: 5, Text: "!"}}

	got := transformAgainst(ops, applied)
	if got[0].Position != 6 {
		t.Fatalf("position = %d, want 6", got[0].Position)
	}
}

func TestTransformAgainst_DeleteShiftsLeft(t *testing.T) {
	ops := []Operation{{Type: OpInsert, Position: 8, Text: "x"}}
	applied := []Operation{{Type: OpDelete, Position: 2, Length: 3}}

	got := transformAgainst(ops, applied)
	if got[0].Position != 5 {
		t.Fatalf("position = %d, want 5", got[0].Position)
	}
}

func TestTransformAgainst_DeleteClampsAtItsStart(t *testing.T) {
	// An operation inside a deleted range lands at the delete's start, not
	// before it.
	ops := []Operation{{Type: OpInsert, Position: 4, Text: "x"}}
	applied := []Operation{{Type: OpDelete, Position: 2, Length: 10}}

	got := transformAgainst(ops, applied)
	if got[0].Position != 2 {
		t.Fatalf("position = %d, want 2", got[0].Position)
	}
}

func TestTransformAgainst_DeleteAtPositionDoesNotShift(t *testing.T) {
	// Strict < : a delete exactly at the operation's position leaves it.
	ops := []Operation{{Type: OpDelete, Position: 3, Length: 1}}
	applied := []Operation{{Type: OpDelete, Position: 3, Length: 2}}

	got := transformAgainst(ops, applied)
	if got[0].Position != 3 {
		t.Fatalf("position = %d, want 3", got[0].Position)
	}
}

func TestTransformAgainst_ShiftsAccumulate(t *testing.T) {
	ops := []Operation{{Type: OpInsert, Position: 4, Text: "x"}}
	applied := []Operation{
		{Type: OpInsert, Position: 0, Text: "aa"}, // +2 -> 6
		{Type: OpDelete, Position: 1, Length: 3},  // -3 -> 3
	}

	got := transformAgainst(ops, applied)
	if got[0].Position != 3 {
		t.Fatalf("position = %d, want 3", got[0].Position)
	}
}

func TestTransformAgainst_RetainUntouched(t *testing.T) {
	ops := []Operation{{Type: OpRetain, Position: 3}}
	applied := []Operation{{Type: OpInsert, Position: 0, Text: "aa"}}

	got := transformAgainst(ops, applied)
	want := []Operation{{Type: OpRetain, Position: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transformAgainst = %+v, want %+v", got, want)
	}
}

// The documented stale-submission case: "Hello" at version 1, "!" committed
// at position 5 first, then a concurrent " World" at position 5 believing
// version 1 must land after the "!".
func TestTransformAgainst_ConcurrentInsertScenario(t *testing.T) {
	stale := []Operation{{Type: OpInsert, Position: 5, Text: " World"}}
	committed := []Operation{{Type: OpInsert, Position: 5, Text: "!"}}

	transformed := transformAgainst(stale, committed)
	content := applyOperations("Hello!", transformed)
	want := "Hello! World"
	if content != want {
		t.Fatalf("content = %q, want %q", content, want)
	}
}
