package conversation

import (
	"fmt"
	"testing"
	"time"
)

func makeTurn(i int) Turn {
	return Turn{
		ID:        fmt.Sprintf("turn-%d", i),
		UserText:  fmt.Sprintf("question %d", i),
		ReplyText: fmt.Sprintf("answer %d", i),
		Status:    StatusOK,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestStateAppendAndOrder(t *testing.T) {
	state := NewState(10)

	for i := 0; i < 5; i++ {
		state.Append(makeTurn(i))
	}

	turns := state.Turns()
	if len(turns) != 5 {
		t.Fatalf("Expected 5 turns, got %d", len(turns))
	}

	for i, turn := range turns {
		if turn.ID != fmt.Sprintf("turn-%d", i) {
			t.Errorf("Position %d: expected turn-%d, got %s", i, i, turn.ID)
		}
	}
}

func TestStateEvictsOldestFirst(t *testing.T) {
	state := NewState(3)

	for i := 0; i < 5; i++ {
		state.Append(makeTurn(i))
	}

	turns := state.Turns()
	if len(turns) != 3 {
		t.Fatalf("Expected 3 retained turns, got %d", len(turns))
	}

	// turn-0 and turn-1 must be gone, order of the rest preserved.
	expected := []string{"turn-2", "turn-3", "turn-4"}
	for i, want := range expected {
		if turns[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, turns[i].ID)
		}
	}
}

func TestStateUnboundedWhenMaxZero(t *testing.T) {
	state := NewState(0)

	for i := 0; i < 50; i++ {
		state.Append(makeTurn(i))
	}

	if state.Len() != 50 {
		t.Errorf("Expected 50 turns with no bound, got %d", state.Len())
	}
}

func TestStateSnapshotRestore(t *testing.T) {
	state := NewState(10)
	for i := 0; i < 4; i++ {
		state.Append(makeTurn(i))
	}

	data, err := state.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored := NewState(10)
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if restored.Len() != 4 {
		t.Fatalf("Expected 4 restored turns, got %d", restored.Len())
	}

	original := state.Turns()
	recovered := restored.Turns()
	for i := range original {
		if recovered[i].ID != original[i].ID || recovered[i].ReplyText != original[i].ReplyText {
			t.Errorf("Turn %d mismatch after restore: %+v vs %+v", i, recovered[i], original[i])
		}
	}
}

func TestStateRestoreAppliesBound(t *testing.T) {
	state := NewState(0)
	for i := 0; i < 8; i++ {
		state.Append(makeTurn(i))
	}

	data, err := state.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	bounded := NewState(3)
	if err := bounded.Restore(data); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	turns := bounded.Turns()
	if len(turns) != 3 {
		t.Fatalf("Expected bound applied on restore, got %d turns", len(turns))
	}

	if turns[0].ID != "turn-5" {
		t.Errorf("Expected newest turns kept, first is %s", turns[0].ID)
	}
}

func TestStateRestoreRejectsGarbage(t *testing.T) {
	state := NewState(5)
	if err := state.Restore([]byte("not json")); err == nil {
		t.Error("Expected error restoring invalid snapshot")
	}
}
