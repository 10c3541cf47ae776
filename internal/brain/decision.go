package brain

import (
	"time"

	"brainlink.ai/internal/protocol"
)

// Decision records one perception and the proposal sent back for it.
type Decision struct {
	Time       time.Time                `json:"time"`
	SessionID  string                   `json:"sessionId"`
	ActorID    string                   `json:"actorId"`
	Perception protocol.PerceptionEvent `json:"perception"`
	Proposal   protocol.IntentProposal  `json:"proposal"`
}
