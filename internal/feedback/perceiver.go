package feedback

import "brainlink.ai/internal/protocol"

// Perceiver assembles the PerceptionEvent sent for an actor on each heartbeat.
type Perceiver struct {
	Outcomes *Outcomes
	Notes    *Notes
}

// Build appends the actor's DM note and then its last outcome (when present)
// after the spatial observations. The input slice is not modified.
func (p Perceiver) Build(actorID string, tick uint64, spatial []protocol.Observation, world *protocol.WorldContext) protocol.PerceptionEvent {
	obs := make([]protocol.Observation, 0, len(spatial)+2)
	obs = append(obs, spatial...)
	if p.Notes != nil {
		if note, ok := p.Notes.Get(actorID); ok {
			obs = append(obs, protocol.DMObservation(note))
		}
	}
	if p.Outcomes != nil {
		if enc, ok := p.Outcomes.GetLast(actorID); ok {
			obs = append(obs, protocol.OutcomeObservation(enc))
		}
	}
	t := float64(tick)
	return protocol.PerceptionEvent{
		Type:         protocol.TypePerception,
		ActorID:      actorID,
		Tick:         &t,
		Observations: obs,
		World:        world,
	}
}
