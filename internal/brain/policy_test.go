package brain

import (
	"testing"

	"brainlink.ai/internal/protocol"
)

func TestSelectIntent_ScenarioA_CloseEnemy(t *testing.T) {
	evt := protocol.PerceptionEvent{
		Type:         protocol.TypePerception,
		ActorID:      "adv-1",
		Observations: []protocol.Observation{protocol.NewObservation(protocol.KindEnemy, "gob-1", 1.5)},
	}
	p := SelectIntent(evt)
	if p.Intent != "wait" || p.Goal != "stay-safe" || p.SuggestedDC == nil || *p.SuggestedDC != 12 {
		t.Fatalf("unexpected proposal: %+v", p)
	}
	if len(p.CandidateActions) != 1 || p.CandidateActions[0].Action != "idle" {
		t.Fatalf("candidates: %+v", p.CandidateActions)
	}
	if p.ActorID != "adv-1" {
		t.Fatalf("actor: %q", p.ActorID)
	}
}

func TestSelectIntent_ScenarioB_Advance(t *testing.T) {
	evt := protocol.PerceptionEvent{
		ActorID: "adv-2",
		Observations: []protocol.Observation{
			protocol.NewObservation(protocol.KindEnemy, "gob-2", 2.5),
			{Kind: protocol.KindEnemy, ID: "gob-3"},
			protocol.NewObservation(protocol.KindAlly, "adv-1", 0.5),
			protocol.OutcomeObservation("fail(3/10)"),
		},
	}
	p := SelectIntent(evt)
	if p.Intent != "move" || *p.SuggestedDC != 10 || len(p.CandidateActions) != 1 {
		t.Fatalf("unexpected proposal: %+v", p)
	}
	dz, ok := p.CandidateActions[0].Float("destDZ")
	if !ok || dz == 0 {
		t.Fatalf("expected non-zero destDZ, got %v %v", dz, ok)
	}
	if _, err := protocol.EncodeIntent(p); err != nil {
		t.Fatalf("proposal must encode: %v", err)
	}
}

func TestSelectIntent_DMHintOffersFallback(t *testing.T) {
	evt := protocol.PerceptionEvent{
		ActorID:      "adv-1",
		Observations: []protocol.Observation{protocol.DMObservation("the gate is open")},
	}
	p := SelectIntent(evt)
	if p.Goal != "advance" || len(p.CandidateActions) != 2 {
		t.Fatalf("unexpected proposal: %+v", p)
	}
	if p.CandidateActions[0].Action != "move" || p.CandidateActions[1].Action != "idle" {
		t.Fatalf("candidate order: %+v", p.CandidateActions)
	}
}

func TestSelectIntent_EnemyBeatsDMHint(t *testing.T) {
	evt := protocol.PerceptionEvent{
		ActorID: "a",
		Observations: []protocol.Observation{
			protocol.DMObservation("run"),
			protocol.NewObservation(protocol.KindEnemy, "gob", 2),
		},
	}
	if p := SelectIntent(evt); p.Intent != "wait" {
		t.Fatalf("close enemy must win, got %+v", p)
	}
}

func TestHeuristic_Configurable(t *testing.T) {
	h := Heuristic{CloseRange: 5, Forward: 4}
	evt := protocol.PerceptionEvent{
		ActorID:      "a",
		Observations: []protocol.Observation{protocol.NewObservation(protocol.KindEnemy, "gob", 4)},
	}
	if p := h.Propose(evt); p.Intent != "wait" {
		t.Fatalf("range 5 should hold at distance 4")
	}
	evt.Observations = nil
	dz, _ := h.Propose(evt).CandidateActions[0].Float("destDZ")
	if dz != 4 {
		t.Fatalf("forward=%v", dz)
	}
}

func TestPolicyFunc(t *testing.T) {
	var pol Policy = PolicyFunc(func(evt protocol.PerceptionEvent) protocol.IntentProposal {
		return protocol.IntentProposal{ActorID: evt.ActorID, Intent: "custom"}
	})
	if p := pol.Propose(protocol.PerceptionEvent{ActorID: "z"}); p.Intent != "custom" || p.ActorID != "z" {
		t.Fatalf("PolicyFunc: %+v", p)
	}
}

func TestRotation(t *testing.T) {
	r := NewRotation(nil)
	want := []struct {
		actor, action, goal string
		dc                  int
	}{
		{"adv-1", "talk", "communicate", 8},
		{"adv-2", "inspect", "observe", 8},
		{"adv-3", "move", "advance", 10},
		{"adv-1", "talk", "communicate", 8},
	}
	for i, w := range want {
		p := r.Next()
		if p.ActorID != w.actor || p.Intent != w.action || p.Goal != w.goal || *p.SuggestedDC != float64(w.dc) || p.Rationale != "local-demo" {
			t.Fatalf("step %d: %+v", i, p)
		}
		if _, err := protocol.EncodeIntent(p); err != nil {
			t.Fatalf("step %d encode: %v", i, err)
		}
	}
}
