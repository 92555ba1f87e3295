package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"skirmish.ai/internal/sim/match"
)

func TestMatchLogger_RoundTripAcrossRotation(t *testing.T) {
	dataDir := t.TempDir()
	l := NewMatchLogger(dataDir, "s1")
	clock := time.Date(2026, 5, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteEvent(match.Event{Tick: 1, Session: "s1", Type: "SPAWNED", Team: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteEvent(match.Event{Tick: 2, Session: "s1", Type: "CAPTURED", Team: 2, Data: map[string]any{"point": "CP1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	dir := MatchDir(dataDir, "s1")
	files, err := ListEventFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "events-2026-05-01-10.jsonl.zst" {
		t.Fatalf("files: %v", files)
	}

	var got []match.Event
	if err := ReadEvents(dir, func(e match.Event) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Type != "SPAWNED" || got[1].Type != "CAPTURED" || got[1].Data["point"] != "CP1" {
		t.Fatalf("events: %+v", got)
	}
}

func TestListEventFiles_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"events-b.jsonl.zst", "events-a.jsonl.zst", "notes.txt", "audit-a.jsonl.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := ListEventFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "events-a.jsonl.zst" {
		t.Fatalf("files: %v", files)
	}
}
