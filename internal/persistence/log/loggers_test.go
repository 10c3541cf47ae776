package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"brainlink.ai/internal/brain"
	"brainlink.ai/internal/gate"
	"brainlink.ai/internal/protocol"
)

func TestResolutionLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewResolutionLogger(dir)
	at := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	l.now = func() time.Time { return at }

	want := []gate.JournalEntry{
		{Time: at, ActorID: "adv-1", Trigger: "roll", Intent: "move", Roll: 15, DC: 15, Success: true, Action: "move", Moved: true},
		{Time: at, ActorID: "adv-1", Trigger: "reroll", Intent: "move", Roll: 14, DC: 15},
	}
	for _, e := range want {
		if err := l.WriteResolution(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(filepath.Join(dir, "resolutions"), "resolutions")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	if filepath.Base(files[0]) != "resolutions-2026-03-01-10-000.jsonl.zst" {
		t.Fatalf("unexpected file name %s", files[0])
	}

	var got []gate.JournalEntry
	err = ReadFile(files[0], func(raw json.RawMessage) error {
		var e gate.JournalEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
}

func TestJournal_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal[map[string]int](dir, "decisions")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	j.now = func() time.Time { return at }
	if err := j.Append(map[string]int{"n": 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := j.Append(map[string]int{"n": 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := Files(dir, "decisions")
	want := []string{"decisions-2026-03-01-10-000.jsonl.zst", "decisions-2026-03-01-11-000.jsonl.zst"}
	if diff := cmp.Diff(want, baseNames(files)); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	for _, f := range files {
		if n := countLines(t, f); n != 1 {
			t.Fatalf("expected one line in %s, got %d", f, n)
		}
	}
}

func TestJournal_RollsOverAtSizeCap(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal[map[string]string](dir, "resolutions")
	j.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	j.maxBytes = 40

	// Each line is 25 bytes, so every segment holds exactly one.
	for _, v := range []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb", "cccccccccccc"} {
		if err := j.Append(map[string]string{"value": v}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := Files(dir, "resolutions")
	want := []string{
		"resolutions-2026-03-01-10-000.jsonl.zst",
		"resolutions-2026-03-01-10-001.jsonl.zst",
		"resolutions-2026-03-01-10-002.jsonl.zst",
	}
	if diff := cmp.Diff(want, baseNames(files)); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	for _, f := range files {
		if n := countLines(t, f); n != 1 {
			t.Fatalf("expected one line in %s, got %d", f, n)
		}
	}
}

func TestJournal_RestartStartsNewSegment(t *testing.T) {
	dir := t.TempDir()
	at := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := 0; i < 2; i++ {
		j := NewJournal[int](dir, "decisions")
		j.now = at
		if err := j.Append(i); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := j.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	files, _ := Files(dir, "decisions")
	want := []string{"decisions-2026-03-01-10-000.jsonl.zst", "decisions-2026-03-01-10-001.jsonl.zst"}
	if diff := cmp.Diff(want, baseNames(files)); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
}

func baseNames(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	n := 0
	if err := ReadFile(path, func(json.RawMessage) error { n++; return nil }); err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return n
}

func TestDecisionLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewDecisionLogger(dir)
	d := brain.Decision{
		SessionID:  "s1",
		ActorID:    "adv-2",
		Perception: protocol.PerceptionEvent{Type: protocol.TypePerception, ActorID: "adv-2"},
		Proposal:   brain.SelectIntent(protocol.PerceptionEvent{ActorID: "adv-2"}),
	}
	if err := l.WriteDecision(d); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = l.Close()
	files, _ := Files(filepath.Join(dir, "decisions"), "decisions")
	if len(files) != 1 {
		t.Fatalf("files: %v", files)
	}
	var got brain.Decision
	_ = ReadFile(files[0], func(raw json.RawMessage) error { return json.Unmarshal(raw, &got) })
	if got.SessionID != "s1" || got.Proposal.Intent != "move" {
		t.Fatalf("decision: %+v", got)
	}
}
