package plan

import "testing"

func TestParseClock(t *testing.T) {
	cases := []struct {
		value   string
		minutes int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"10:60", 0, true},
		{"1030", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		minutes, err := ParseClock(tc.value)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error", tc.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.value, err)
			continue
		}
		if minutes != tc.minutes {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.value, minutes, tc.minutes)
		}
	}
}

func TestHasConflictContainedInterval(t *testing.T) {
	day := []Scheduled{{ID: "a1", StartTime: "10:30", DurationMinutes: 30}}
	candidate := Scheduled{StartTime: "10:00", DurationMinutes: 60}

	if !HasConflict(day, candidate, "") {
		t.Error("10:30-11:00 inside 10:00-11:00 must conflict")
	}
}

func TestHasConflictTouchingBoundaries(t *testing.T) {
	day := []Scheduled{{ID: "a1", StartTime: "09:00", DurationMinutes: 60}}

	if HasConflict(day, Scheduled{StartTime: "10:00", DurationMinutes: 30}, "") {
		t.Error("candidate starting exactly when a1 ends must not conflict")
	}
	if HasConflict(day, Scheduled{StartTime: "08:30", DurationMinutes: 30}, "") {
		t.Error("candidate ending exactly when a1 starts must not conflict")
	}
}

func TestHasConflictPartialOverlap(t *testing.T) {
	day := []Scheduled{{ID: "a1", StartTime: "09:00", DurationMinutes: 60}}

	if !HasConflict(day, Scheduled{StartTime: "09:45", DurationMinutes: 30}, "") {
		t.Error("overlapping tail must conflict")
	}
}

func TestHasConflictIgnoresUnscheduled(t *testing.T) {
	day := []Scheduled{
		{ID: "a1", StartTime: "10:00"},           // no duration
		{ID: "a2", DurationMinutes: 45},          // no start time
		{ID: "a3", StartTime: "", DurationMinutes: 0},
	}
	if HasConflict(day, Scheduled{StartTime: "10:00", DurationMinutes: 120}, "") {
		t.Error("unscheduled activities must never conflict")
	}
}

func TestHasConflictUnscheduledCandidate(t *testing.T) {
	day := []Scheduled{{ID: "a1", StartTime: "10:00", DurationMinutes: 60}}
	if HasConflict(day, Scheduled{StartTime: "10:00"}, "") {
		t.Error("candidate without duration must never conflict")
	}
}

func TestHasConflictExcludesEditedActivity(t *testing.T) {
	day := []Scheduled{{ID: "a1", StartTime: "10:00", DurationMinutes: 60}}
	candidate := Scheduled{StartTime: "10:15", DurationMinutes: 30}

	if HasConflict(day, candidate, "a1") {
		t.Error("the activity being edited must not conflict with itself")
	}
	if !HasConflict(day, candidate, "other") {
		t.Error("excluding an unrelated ID must not hide the conflict")
	}
}
