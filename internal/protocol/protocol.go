package protocol

import "encoding/json"

// Message types.
const (
	TypePerception = "PerceptionEvent"
	TypeIntent     = "IntentProposal"
	TypeError      = "Error"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
