package plan

import (
	"errors"
	"testing"
)

func TestMoveDeltasIntoEmptyDay(t *testing.T) {
	// Day0 holds A(0), B(1); Day1 is empty. Moving A to Day1 index 0 must
	// leave Day0 with only B at 0 and Day1 with A at 0.
	moveplan, err := MoveDeltas([]string{"A", "B"}, nil, "A", 0)
	if err != nil {
		t.Fatalf("MoveDeltas: %v", err)
	}

	if len(moveplan.SourceWrites) != 1 || moveplan.SourceWrites[0].ID != "B" || moveplan.SourceWrites[0].Position != 0 {
		t.Errorf("expected B shifted to 0 in source, got %v", moveplan.SourceWrites)
	}
	if len(moveplan.TargetWrites) != 0 {
		t.Errorf("expected no target writes, got %v", moveplan.TargetWrites)
	}
	if moveplan.MovedPosition != 0 {
		t.Errorf("expected moved position 0, got %d", moveplan.MovedPosition)
	}
}

func TestMoveDeltasOpensTargetSlot(t *testing.T) {
	source := []string{"a0", "a1", "a2"}
	target := []string{"b0", "b1", "b2"}

	moveplan, err := MoveDeltas(source, target, "a1", 1)
	if err != nil {
		t.Fatalf("MoveDeltas: %v", err)
	}

	// a2 closes the gap in the source day.
	if len(moveplan.SourceWrites) != 1 || moveplan.SourceWrites[0] != (PositionWrite{ID: "a2", Position: 1}) {
		t.Errorf("unexpected source writes: %v", moveplan.SourceWrites)
	}
	// b1 and b2 shift up to open index 1.
	if len(moveplan.TargetWrites) != 2 {
		t.Fatalf("expected 2 target writes, got %v", moveplan.TargetWrites)
	}
	if moveplan.TargetWrites[0] != (PositionWrite{ID: "b1", Position: 2}) ||
		moveplan.TargetWrites[1] != (PositionWrite{ID: "b2", Position: 3}) {
		t.Errorf("unexpected target writes: %v", moveplan.TargetWrites)
	}
	if moveplan.MovedPosition != 1 {
		t.Errorf("expected moved position 1, got %d", moveplan.MovedPosition)
	}
}

func TestMoveDeltasAppendWhenIndexOmitted(t *testing.T) {
	moveplan, err := MoveDeltas([]string{"a0", "a1"}, []string{"b0", "b1"}, "a0", -1)
	if err != nil {
		t.Fatalf("MoveDeltas: %v", err)
	}
	if moveplan.MovedPosition != 2 {
		t.Errorf("negative index must append at end, got position %d", moveplan.MovedPosition)
	}
	if len(moveplan.TargetWrites) != 0 {
		t.Errorf("append must not shift target rows, got %v", moveplan.TargetWrites)
	}
}

func TestMoveDeltasClampsIndexPastEnd(t *testing.T) {
	moveplan, err := MoveDeltas([]string{"a0"}, []string{"b0"}, "a0", 99)
	if err != nil {
		t.Fatalf("MoveDeltas: %v", err)
	}
	if moveplan.MovedPosition != 1 {
		t.Errorf("index past end must clamp to len(target), got %d", moveplan.MovedPosition)
	}
}

func TestMoveDeltasMovedMissingFromSource(t *testing.T) {
	_, err := MoveDeltas([]string{"a0"}, []string{"b0"}, "zz", 0)
	if !errors.Is(err, ErrNotInSource) {
		t.Errorf("expected ErrNotInSource, got %v", err)
	}
}

func TestMoveDeltasMovedAlreadyInTarget(t *testing.T) {
	_, err := MoveDeltas([]string{"a0"}, []string{"a0", "b0"}, "a0", 0)
	if !errors.Is(err, ErrAlreadyInTarget) {
		t.Errorf("expected ErrAlreadyInTarget, got %v", err)
	}
}

func TestMoveDeltasPreserveDensityAcrossBothDays(t *testing.T) {
	source := []string{"a0", "a1", "a2", "a3"}
	target := []string{"b0", "b1"}

	for targetIndex := 0; targetIndex <= len(target); targetIndex++ {
		moveplan, err := MoveDeltas(source, target, "a1", targetIndex)
		if err != nil {
			t.Fatalf("MoveDeltas(%d): %v", targetIndex, err)
		}

		// Apply the plan to in-memory position maps and check density.
		sourcePositions := map[string]int{"a0": 0, "a2": 2, "a3": 3}
		for _, write := range moveplan.SourceWrites {
			sourcePositions[write.ID] = write.Position
		}
		assertDense(t, sourcePositions)

		targetPositions := map[string]int{"b0": 0, "b1": 1}
		for _, write := range moveplan.TargetWrites {
			targetPositions[write.ID] = write.Position
		}
		targetPositions["a1"] = moveplan.MovedPosition
		assertDense(t, targetPositions)
	}
}

func assertDense(t *testing.T, positions map[string]int) {
	t.Helper()
	seen := make([]bool, len(positions))
	for id, position := range positions {
		if position < 0 || position >= len(positions) {
			t.Fatalf("position %d of %s out of range: %v", position, id, positions)
		}
		if seen[position] {
			t.Fatalf("duplicate position %d: %v", position, positions)
		}
		seen[position] = true
	}
}
