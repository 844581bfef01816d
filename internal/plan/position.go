// Package plan implements the ordering core for itinerary reconciliation:
// dense position normalization, schedule conflict detection, and the
// position-delta computation for cross-day moves. Everything here is pure;
// persistence and locking live in the store.
package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompleteSet reports that a reorder request did not name exactly
	// the parent's current children.
	ErrIncompleteSet = errors.New("supplied IDs do not match the parent's children")

	// ErrDuplicateID reports a repeated ID in a reorder request.
	ErrDuplicateID = errors.New("duplicate ID in ordered list")
)

// Normalize assigns each ID its index in the given sequence. The result is
// dense 0..n-1 for exactly the IDs supplied; callers must supply the complete
// child set of one parent.
func Normalize(orderedIDs []string) map[string]int {
	positions := make(map[string]int, len(orderedIDs))
	for index, id := range orderedIDs {
		positions[id] = index
	}
	return positions
}

// ValidateCompleteSet checks that supplied is a permutation of current.
// A partial list would silently orphan the positions of untouched siblings,
// so reorders are rejected before any write.
func ValidateCompleteSet(supplied, current []string) error {
	seen := make(map[string]bool, len(supplied))
	for _, id := range supplied {
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = true
	}
	if len(supplied) != len(current) {
		return fmt.Errorf("%w: got %d IDs, parent has %d children", ErrIncompleteSet, len(supplied), len(current))
	}
	for _, id := range current {
		if !seen[id] {
			return fmt.Errorf("%w: missing %s", ErrIncompleteSet, id)
		}
	}
	return nil
}

// Reinsert returns the sequence with movedID removed from its current slot and
// reinserted at targetIndex. A negative targetIndex appends; indexes past the
// end are clamped. The moved ID must already be present.
func Reinsert(orderedIDs []string, movedID string, targetIndex int) []string {
	without := make([]string, 0, len(orderedIDs))
	found := false
	for _, id := range orderedIDs {
		if id == movedID {
			found = true
			continue
		}
		without = append(without, id)
	}
	if !found {
		return orderedIDs
	}
	if targetIndex < 0 || targetIndex > len(without) {
		targetIndex = len(without)
	}
	result := make([]string, 0, len(orderedIDs))
	result = append(result, without[:targetIndex]...)
	result = append(result, movedID)
	result = append(result, without[targetIndex:]...)
	return result
}
