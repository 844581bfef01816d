package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInSource reports that the moved activity is not part of the
	// source day's snapshot (concurrently moved or deleted).
	ErrNotInSource = errors.New("moved ID not present in source sequence")

	// ErrAlreadyInTarget guards against computing a cross-day move when the
	// activity already lives in the target day; callers handle that as a
	// same-day reorder instead.
	ErrAlreadyInTarget = errors.New("moved ID already present in target sequence")
)

// PositionWrite is one persisted position update.
type PositionWrite struct {
	ID       string
	Position int
}

// MovePlan is the minimal write set realizing a cross-day move. All three
// parts must be computed from one consistent snapshot of both days and
// applied inside one transaction.
type MovePlan struct {
	// SourceWrites close the gap the moved activity leaves behind.
	SourceWrites []PositionWrite
	// TargetWrites open a slot at the requested index.
	TargetWrites []PositionWrite
	// MovedPosition is the moved activity's final position in the target day.
	MovedPosition int
}

// MoveDeltas computes the three-part shift for moving movedID out of source
// (its current ordered activity IDs) into target at targetIndex. A negative
// targetIndex appends; indexes past the end are clamped. Same-day moves are
// not handled here — use Reinsert and Normalize for those.
func MoveDeltas(source, target []string, movedID string, targetIndex int) (MovePlan, error) {
	oldPosition := -1
	for index, id := range source {
		if id == movedID {
			oldPosition = index
			break
		}
	}
	if oldPosition < 0 {
		return MovePlan{}, fmt.Errorf("%w: %s", ErrNotInSource, movedID)
	}
	for _, id := range target {
		if id == movedID {
			return MovePlan{}, fmt.Errorf("%w: %s", ErrAlreadyInTarget, movedID)
		}
	}
	if targetIndex < 0 || targetIndex > len(target) {
		targetIndex = len(target)
	}

	moveplan := MovePlan{MovedPosition: targetIndex}
	for index := oldPosition + 1; index < len(source); index++ {
		moveplan.SourceWrites = append(moveplan.SourceWrites, PositionWrite{ID: source[index], Position: index - 1})
	}
	for index := targetIndex; index < len(target); index++ {
		moveplan.TargetWrites = append(moveplan.TargetWrites, PositionWrite{ID: target[index], Position: index + 1})
	}
	return moveplan, nil
}
