package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"brainlink.ai/internal/brain"
	"brainlink.ai/internal/gate"
	persistlog "brainlink.ai/internal/persistence/log"
	"brainlink.ai/internal/protocol"
)

func TestSummarizeResolutions(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewResolutionLogger(dir)
	entries := []gate.JournalEntry{
		{ActorID: "adv-1", Roll: 15, DC: 10, Success: true, Action: "move", Moved: true},
		{ActorID: "adv-1", Roll: 5, DC: 10},
		{ActorID: "adv-2", Roll: 12, DC: 12, Success: true, Action: "dance", Unhandled: true},
	}
	for _, e := range entries {
		e.Time = time.Now().UTC()
		if err := l.WriteResolution(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := persistlog.Files(filepath.Join(dir, "resolutions"), "resolutions")
	if err != nil || len(files) == 0 {
		t.Fatalf("files: %v %v", files, err)
	}
	var out bytes.Buffer
	if err := summarizeResolutions(&out, files, ""); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"resolutions actor=adv-1 rolls=2 success=1 rate=0.50 avg_roll=10.0 avg_dc=10.0 moves=1 unhandled=0",
		"resolutions actor=adv-2 rolls=1 success=1 rate=1.00 avg_roll=12.0 avg_dc=12.0 moves=0 unhandled=1",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}

	out.Reset()
	_ = summarizeResolutions(&out, files, "adv-2")
	if strings.Contains(out.String(), "adv-1") {
		t.Fatalf("actor filter ignored:\n%s", out.String())
	}
}

func TestSummarizeDecisions(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewDecisionLogger(dir)
	for i, evt := range []protocol.PerceptionEvent{
		{Type: protocol.TypePerception, ActorID: "adv-1", Observations: []protocol.Observation{protocol.NewObservation(protocol.KindEnemy, "gob-1", 1)}},
		{Type: protocol.TypePerception, ActorID: "adv-1"},
		{Type: protocol.TypePerception, ActorID: "adv-2"},
	} {
		d := brain.Decision{Time: time.Now().UTC(), SessionID: "s-1", ActorID: evt.ActorID, Perception: evt, Proposal: brain.SelectIntent(evt)}
		if i == 2 {
			d.SessionID = "s-2"
		}
		if err := l.WriteDecision(d); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := persistlog.Files(filepath.Join(dir, "decisions"), "decisions")
	var out bytes.Buffer
	if err := summarizeDecisions(&out, files, ""); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"decisions sessions=2 actors=2",
		"decisions actor=adv-1 total=2 move=1 wait=1",
		"decisions actor=adv-2 total=1 move=1",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}
