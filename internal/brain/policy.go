// Package brain turns perception reports into intent proposals.
package brain

import (
	"strings"

	"brainlink.ai/internal/protocol"
)

// Policy decides what an actor should try next.
type Policy interface {
	Propose(protocol.PerceptionEvent) protocol.IntentProposal
}

type PolicyFunc func(protocol.PerceptionEvent) protocol.IntentProposal

func (f PolicyFunc) Propose(evt protocol.PerceptionEvent) protocol.IntentProposal { return f(evt) }

const (
	DefaultCloseRange = 2.0
	DefaultForward    = 2.0

	safeDC    = 12
	advanceDC = 10
)

// Heuristic is the default rule-based policy. Rules are checked in order:
// a close enemy, then a DM hint, then a plain advance.
type Heuristic struct {
	// CloseRange is the enemy distance at or below which the actor holds.
	CloseRange float64
	// Forward is the destDZ of the advance move.
	Forward float64
}

var defaultHeuristic = Heuristic{CloseRange: DefaultCloseRange, Forward: DefaultForward}

// SelectIntent applies the default Heuristic.
func SelectIntent(evt protocol.PerceptionEvent) protocol.IntentProposal {
	return defaultHeuristic.Propose(evt)
}

func (h Heuristic) Propose(evt protocol.PerceptionEvent) protocol.IntentProposal {
	if h.CloseRange <= 0 {
		h.CloseRange = DefaultCloseRange
	}
	if h.Forward == 0 {
		h.Forward = DefaultForward
	}

	if closeEnemy(evt.Observations, h.CloseRange) {
		return proposal(evt.ActorID, "stay-safe", "wait", "Enemy nearby, holding position", safeDC,
			protocol.CandidateAction{Action: "idle", Params: map[string]any{}})
	}
	if hasDMHint(evt.Observations) {
		return proposal(evt.ActorID, "advance", "move", "DM hint present; moving.", advanceDC,
			h.advance(),
			protocol.CandidateAction{Action: "idle", Params: map[string]any{}})
	}
	return proposal(evt.ActorID, "advance", "move", "Advance cautiously", advanceDC, h.advance())
}

func (h Heuristic) advance() protocol.CandidateAction {
	return protocol.CandidateAction{Action: "move", Params: map[string]any{"destDX": 0.0, "destDZ": h.Forward}}
}

func closeEnemy(obs []protocol.Observation, within float64) bool {
	for _, o := range obs {
		if o.Kind == protocol.KindEnemy && o.Distance != nil && *o.Distance <= within {
			return true
		}
	}
	return false
}

func hasDMHint(obs []protocol.Observation) bool {
	for _, o := range obs {
		if o.Kind == protocol.KindInfo && strings.HasPrefix(o.ID, protocol.DMPrefix) {
			return true
		}
	}
	return false
}

func proposal(actorID, goal, intent, rationale string, dc int, cands ...protocol.CandidateAction) protocol.IntentProposal {
	d := float64(dc)
	return protocol.IntentProposal{
		Type:             protocol.TypeIntent,
		ActorID:          actorID,
		Goal:             goal,
		Intent:           intent,
		Rationale:        rationale,
		SuggestedDC:      &d,
		CandidateActions: cands,
	}
}
