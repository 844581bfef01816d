package genai

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"bare json", `{"name":"x"}`, `{"name":"x"}`},
		{"json fence", "Here you go:\n```json\n{\"name\":\"x\"}\n```", `{"name":"x"}`},
		{"plain fence", "```\n{\"name\":\"x\"}\n```", `{"name":"x"}`},
		{"surrounding whitespace", "  {\"name\":\"x\"}  ", `{"name":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSON(tc.content); got != tc.want {
				t.Errorf("extractJSON() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseGeneratedTripClampsDayCount(t *testing.T) {
	content := `{"name":"Lisbon","destination":"Lisbon","days":[
		{"activities":[{"title":"Alfama walk","startTime":"10:00","duration":90}]},
		{"activities":[{"title":"Belém","startTime":"09:00","duration":120}]},
		{"activities":[{"title":"Extra day"}]}
	]}`

	trip, err := parseGeneratedTrip(content, "Lisbon", 2)
	if err != nil {
		t.Fatalf("parseGeneratedTrip failed: %v", err)
	}
	if len(trip.Days) != 2 {
		t.Errorf("expected 2 days, got %d", len(trip.Days))
	}
}

func TestParseGeneratedTripPadsMissingDays(t *testing.T) {
	content := `{"days":[{"activities":[{"title":"Alfama walk"}]}]}`

	trip, err := parseGeneratedTrip(content, "Lisbon", 3)
	if err != nil {
		t.Fatalf("parseGeneratedTrip failed: %v", err)
	}
	if len(trip.Days) != 3 {
		t.Errorf("expected 3 days, got %d", len(trip.Days))
	}
	if trip.Destination != "Lisbon" || trip.Name == "" {
		t.Errorf("expected destination and name filled in, got %+v", trip)
	}
}

func TestParseGeneratedTripDropsInvalidTimes(t *testing.T) {
	content := `{"days":[{"activities":[
		{"title":"Bad clock","startTime":"25:00","duration":60},
		{"title":"","startTime":"10:00","duration":60},
		{"title":"Good","startTime":"10:00","duration":-5}
	]}]}`

	trip, err := parseGeneratedTrip(content, "Lisbon", 1)
	if err != nil {
		t.Fatalf("parseGeneratedTrip failed: %v", err)
	}
	activities := trip.Days[0].Activities
	if len(activities) != 2 {
		t.Fatalf("expected untitled activity dropped, got %d activities", len(activities))
	}
	if activities[0].StartTime != "" || activities[0].Duration != 0 {
		t.Errorf("invalid clock must clear the schedule, got %+v", activities[0])
	}
	if activities[1].Duration != 0 {
		t.Errorf("negative duration must clamp to 0, got %d", activities[1].Duration)
	}
}

func TestParseGeneratedTripRejectsEmptyPlan(t *testing.T) {
	_, err := parseGeneratedTrip(`{"days":[]}`, "Lisbon", 2)
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}
