package triplog

import (
	"testing"
)

func sampleSnapshot(name string) Snapshot {
	return Snapshot{
		Name:        name,
		Destination: "Lisbon",
		StartDate:   "2026-06-01",
		EndDate:     "2026-06-03",
		Days: []SnapshotDay{
			{Date: "2026-06-01", Activities: []SnapshotActivity{
				{Title: "Castelo de São Jorge", StartTime: "10:00", Duration: 90},
			}},
		},
	}
}

func TestEnsureRepoAndHead(t *testing.T) {
	s := New(t.TempDir())

	if err := s.EnsureRepo("it-1", sampleSnapshot("Lisbon trip"), "Avery"); err != nil {
		t.Fatalf("EnsureRepo failed: %v", err)
	}
	// Second call is a no-op.
	if err := s.EnsureRepo("it-1", sampleSnapshot("something else"), "Avery"); err != nil {
		t.Fatalf("EnsureRepo (repeat) failed: %v", err)
	}

	snapshot, entry, err := s.Head("it-1")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if snapshot.Name != "Lisbon trip" {
		t.Errorf("expected baseline snapshot, got %q", snapshot.Name)
	}
	if entry.Author != "Avery" || entry.Hash == "" {
		t.Errorf("unexpected head entry: %+v", entry)
	}
}

func TestRecordAppendsHistory(t *testing.T) {
	s := New(t.TempDir())
	if err := s.EnsureRepo("it-1", sampleSnapshot("Lisbon trip"), "Avery"); err != nil {
		t.Fatalf("EnsureRepo failed: %v", err)
	}

	changed := sampleSnapshot("Lisbon trip")
	changed.Days[0].Activities = append(changed.Days[0].Activities, SnapshotActivity{Title: "Time Out Market"})

	entry, err := s.Record("it-1", changed, "Sam", "Added Time Out Market")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if entry.Author != "Sam" {
		t.Errorf("expected author Sam, got %q", entry.Author)
	}

	entries, err := s.History("it-1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "Added Time Out Market" {
		t.Errorf("expected newest entry first, got %q", entries[0].Message)
	}
}

func TestRecordSkipsUnchangedSnapshot(t *testing.T) {
	s := New(t.TempDir())
	if err := s.EnsureRepo("it-1", sampleSnapshot("Lisbon trip"), "Avery"); err != nil {
		t.Fatalf("EnsureRepo failed: %v", err)
	}

	if _, err := s.Record("it-1", sampleSnapshot("Lisbon trip"), "Sam", "No-op save"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := s.History("it-1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("unchanged snapshot must not add a commit, got %d entries", len(entries))
	}
}

func TestSnapshotAtResolvesShortHash(t *testing.T) {
	s := New(t.TempDir())
	if err := s.EnsureRepo("it-1", sampleSnapshot("Lisbon trip"), "Avery"); err != nil {
		t.Fatalf("EnsureRepo failed: %v", err)
	}
	changed := sampleSnapshot("Renamed trip")
	if _, err := s.Record("it-1", changed, "Avery", "Renamed"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := s.History("it-1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	baseline := entries[len(entries)-1]

	snapshot, err := s.SnapshotAt("it-1", baseline.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt failed: %v", err)
	}
	if snapshot.Name != "Lisbon trip" {
		t.Errorf("expected baseline snapshot, got %q", snapshot.Name)
	}

	if _, err := s.History("it-1", 1); err != nil {
		t.Fatalf("History with limit failed: %v", err)
	}
}
