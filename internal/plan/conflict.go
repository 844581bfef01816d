package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Scheduled is the slice of an activity the conflict detector cares about.
// StartTime is "HH:mm"; DurationMinutes is 0 for unscheduled activities.
type Scheduled struct {
	ID              string
	StartTime       string
	DurationMinutes int
}

// scheduled reports whether the activity carries both a start time and a
// duration. Anything else is treated as unscheduled and never conflicts.
func (s Scheduled) scheduled() bool {
	return strings.TrimSpace(s.StartTime) != "" && s.DurationMinutes > 0
}

// ParseClock converts "HH:mm" to minutes since midnight.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("clock value %q out of range", value)
	}
	return hours*60 + minutes, nil
}

// HasConflict reports whether the candidate's time range overlaps any
// scheduled activity in the day, excluding excludeID (the activity being
// edited, if any). Intervals are half-open: an activity ending at 10:00 does
// not conflict with one starting at 10:00. The check is advisory; the
// reconciler never blocks a save on it.
func HasConflict(activities []Scheduled, candidate Scheduled, excludeID string) bool {
	if !candidate.scheduled() {
		return false
	}
	candidateStart, err := ParseClock(candidate.StartTime)
	if err != nil {
		return false
	}
	candidateEnd := candidateStart + candidate.DurationMinutes

	for _, activity := range activities {
		if activity.ID == excludeID || activity.ID == candidate.ID {
			continue
		}
		if !activity.scheduled() {
			continue
		}
		start, err := ParseClock(activity.StartTime)
		if err != nil {
			continue
		}
		end := start + activity.DurationMinutes
		if candidateStart < end && candidateEnd > start {
			return true
		}
	}
	return false
}
