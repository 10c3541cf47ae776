package brain

import (
	"sync"

	"brainlink.ai/internal/protocol"
)

var DefaultActors = []string{"adv-1", "adv-2", "adv-3"}

// Rotation generates proposals without a decision service. Each call
// advances one shared step: actors are visited round robin while the action
// cycles talk, inspect, move.
type Rotation struct {
	Actors []string
	// MoveDZ is the destDZ of generated moves.
	MoveDZ float64

	mu   sync.Mutex
	step int
}

func NewRotation(actors []string) *Rotation {
	if len(actors) == 0 {
		actors = DefaultActors
	}
	return &Rotation{Actors: append([]string(nil), actors...), MoveDZ: 3}
}

// Next returns the proposal for the next actor in the rotation.
func (r *Rotation) Next() protocol.IntentProposal {
	r.mu.Lock()
	actor := r.Actors[r.step%len(r.Actors)]
	r.step++
	step := r.step
	r.mu.Unlock()
	return r.build(actor, step)
}

// Propose answers for evt.ActorID using the next action in the cycle.
func (r *Rotation) Propose(evt protocol.PerceptionEvent) protocol.IntentProposal {
	r.mu.Lock()
	r.step++
	step := r.step
	r.mu.Unlock()
	return r.build(evt.ActorID, step)
}

func (r *Rotation) build(actor string, step int) protocol.IntentProposal {
	var act, goal string
	switch step % 3 {
	case 0:
		act, goal = "move", "advance"
	case 1:
		act, goal = "talk", "communicate"
	default:
		act, goal = "inspect", "observe"
	}
	c := protocol.CandidateAction{Action: act, Params: map[string]any{}}
	dc := 8
	if act == "move" {
		c.Params = map[string]any{"destDX": 0.0, "destDZ": r.MoveDZ}
		dc = 10
	}
	return proposal(actor, goal, act, "local-demo", dc, c)
}
