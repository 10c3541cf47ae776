package session

import (
	"brainlink.ai/internal/feedback"
	"brainlink.ai/internal/gate"
)

// Operator controls. Each is safe to call from an HTTP handler while the
// receive and heartbeat loops run.

func (r *Registry) Roll(actorID string) (gate.Resolution, error) { return r.Engine.Resolve(actorID) }

func (r *Registry) Reroll(actorID string) (gate.Resolution, error) { return r.Engine.Reroll(actorID) }

// SetDC sets the DC for actorID, or the default DC for every actor when
// actorID is empty. It returns the clamped value.
func (r *Registry) SetDC(actorID string, dc int) int {
	if actorID == "" {
		return r.Engine.SetDefaultDC(dc)
	}
	return r.Engine.SetDC(actorID, dc)
}

func (r *Registry) SetRespectSuggested(v bool) { r.Engine.SetRespectSuggested(v) }

func (r *Registry) RespectSuggested() bool { return r.Engine.RespectSuggested() }

func (r *Registry) CycleCandidate(actorID string, delta int) (int, bool) {
	return r.Stage.CycleCandidate(actorID, delta)
}

func (r *Registry) SelectCandidate(actorID string, index int) (int, bool) {
	return r.Stage.SetCandidate(actorID, index)
}

// Narrate sets the DM note carried on actorID's next perceptions. An empty
// note clears it.
func (r *Registry) Narrate(actorID, note string) { r.Notes.Set(actorID, note) }

// SubscribeNotes calls fn after every DM note change until the returned
// cancel is called.
func (r *Registry) SubscribeNotes(fn func(feedback.NoteChange)) func() { return r.Notes.Subscribe(fn) }

func (r *Registry) SetHP(actorID string, hp int) { r.Party.SetHP(actorID, hp) }

// GiveItem appends item to actorID's inventory.
func (r *Registry) GiveItem(actorID, item string) { r.Party.AddItem(actorID, item) }

func (r *Registry) SetTime(t string) { r.Scene.SetTime(t) }
