package gate

import (
	"sync"
	"testing"

	"brainlink.ai/internal/protocol"
)

func proposal(intent string, actions ...string) protocol.IntentProposal {
	p := protocol.IntentProposal{Type: protocol.TypeIntent, ActorID: "a", Goal: "g", Intent: intent}
	for _, a := range actions {
		p.CandidateActions = append(p.CandidateActions, protocol.CandidateAction{Action: a, Params: map[string]any{}})
	}
	return p
}

func TestStage_LastWriteWinsAndResetsIndex(t *testing.T) {
	st := NewStage(10)
	st.Stage("a", proposal("first", "idle", "talk", "inspect"), nil)
	if idx, ok := st.CycleCandidate("a", 2); !ok || idx != 2 {
		t.Fatalf("CycleCandidate=%d %v", idx, ok)
	}
	st.Stage("a", proposal("second", "talk", "idle"), nil)

	got, ok := st.Staged("a")
	if !ok || got.Intent != "second" {
		t.Fatalf("expected second proposal, got %+v", got)
	}
	v, _ := st.Snapshot("a")
	if v.CandidateIndex != 0 || v.Phase != "staged" || v.DC != 10 {
		t.Fatalf("snapshot after restage: %+v", v)
	}
}

func TestStage_CycleClamps(t *testing.T) {
	st := NewStage(10)
	if _, ok := st.CycleCandidate("a", 1); ok {
		t.Fatalf("cycle without proposal should report false")
	}
	st.Stage("a", proposal("x", "idle", "talk"), nil)
	cases := []struct {
		delta int
		want  int
	}{{1, 1}, {1, 1}, {5, 1}, {-1, 0}, {-9, 0}}
	for _, tc := range cases {
		if got, _ := st.CycleCandidate("a", tc.delta); got != tc.want {
			t.Fatalf("CycleCandidate(%d)=%d want %d", tc.delta, got, tc.want)
		}
	}
	if got, _ := st.SetCandidate("a", 7); got != 1 {
		t.Fatalf("SetCandidate clamp=%d", got)
	}
}

func TestStage_DCAndOrder(t *testing.T) {
	st := NewStage(99)
	if st.DefaultDC() != 20 {
		t.Fatalf("default DC not clamped: %d", st.DefaultDC())
	}
	if got := st.SetDC("b", 2); got != 5 {
		t.Fatalf("SetDC clamp=%d", got)
	}
	st.Stage("a", proposal("x", "idle"), nil)
	if got := st.Actors(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("Actors order: %v", got)
	}
	st.SetDefaultDC(12)
	for _, id := range []string{"a", "b"} {
		if v, _ := st.Snapshot(id); v.DC != 12 {
			t.Fatalf("%s dc=%d after SetDefaultDC", id, v.DC)
		}
	}
	if _, ok := st.Staged("b"); ok {
		t.Fatalf("SetDC must not stage a proposal")
	}
}

func TestStage_ConcurrentStagingKeepsOneProposal(t *testing.T) {
	st := NewStage(10)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Stage("a", proposal("p", "idle", "talk"), nil)
			st.CycleCandidate("a", i%3)
		}(i)
	}
	wg.Wait()
	if len(st.Actors()) != 1 {
		t.Fatalf("expected one slot, got %v", st.Actors())
	}
	v, ok := st.Snapshot("a")
	if !ok || v.Proposal == nil || v.CandidateIndex < 0 || v.CandidateIndex > 1 {
		t.Fatalf("bad slot: %+v", v)
	}
}
