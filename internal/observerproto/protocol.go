// Package observerproto defines the read-only operator stream.
package observerproto

import "brainlink.ai/internal/session"

// Version is the observer protocol version, separate from the gateway frames.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeStatus    = "STATUS"
	TypeNote      = "NOTE"
)

// Client -> Server. First message on the observer connection; can be re-sent
// to change the interval.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	IntervalMS      int    `json:"interval_ms,omitempty"`
}

// Server -> Client. Sent on subscribe and then every interval.
type StatusMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Seq             uint64         `json:"seq"`
	Status          session.Status `json:"status"`
}

// Server -> Client. Sent whenever a DM note changes.
type NoteMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorID         string `json:"actor_id"`
	Note            string `json:"note"`
}
