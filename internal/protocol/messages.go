package protocol

import (
	"encoding/json"
	"strings"
)

type ObservationKind string

const (
	KindEnemy  ObservationKind = "enemy"
	KindObject ObservationKind = "object"
	KindTrap   ObservationKind = "trap"
	KindAlly   ObservationKind = "ally"
	KindInfo   ObservationKind = "info"
)

// Info observations whose id carries one of these prefixes are narrative
// context rather than spatial data.
const (
	DMPrefix      = "dm:"
	OutcomePrefix = "outcome:"
)

// PerceptionEvent (client -> gateway)
type PerceptionEvent struct {
	Type         string        `json:"type"`
	ActorID      string        `json:"actorId"`
	Tick         *float64      `json:"tick,omitempty"`
	Observations []Observation `json:"observations,omitempty"`
	World        *WorldContext `json:"world,omitempty"`

	// Extra keeps top-level fields this version does not know about so they
	// survive a decode/encode cycle.
	Extra map[string]json.RawMessage `json:"-"`
}

type Observation struct {
	Kind     ObservationKind `json:"kind"`
	ID       string          `json:"id"`
	Distance *float64        `json:"distance,omitempty"`
}

type WorldContext struct {
	PoiID  string `json:"poiId,omitempty"`
	Time   string `json:"time,omitempty"`
	Threat string `json:"threat,omitempty"`
}

// IntentProposal (gateway -> client)
type IntentProposal struct {
	Type             string            `json:"type"`
	ActorID          string            `json:"actorId"`
	Goal             string            `json:"goal"`
	Intent           string            `json:"intent"`
	Rationale        string            `json:"rationale,omitempty"`
	SuggestedDC      *float64          `json:"suggestedDC,omitempty"`
	CandidateActions []CandidateAction `json:"candidateActions"`

	Extra map[string]json.RawMessage `json:"-"`
}

type CandidateAction struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Float reads a numeric parameter.
func (c CandidateAction) Float(key string) (float64, bool) {
	if c.Params == nil {
		return 0, false
	}
	return Number(c.Params[key])
}

func (c CandidateAction) MarshalJSON() ([]byte, error) {
	type wire CandidateAction
	w := wire(c)
	if w.Params == nil {
		w.Params = map[string]any{}
	}
	return json.Marshal(w)
}

// Number converts the numeric shapes a param bag can hold into a float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func NewObservation(kind ObservationKind, id string, distance float64) Observation {
	d := distance
	return Observation{Kind: kind, ID: id, Distance: &d}
}

func DMObservation(note string) Observation {
	return Observation{Kind: KindInfo, ID: DMPrefix + note}
}

func OutcomeObservation(encoded string) Observation {
	return Observation{Kind: KindInfo, ID: OutcomePrefix + encoded}
}

// DMNote returns the narration carried by a dm: info observation.
func (o Observation) DMNote() (string, bool) {
	if o.Kind != KindInfo || !strings.HasPrefix(o.ID, DMPrefix) {
		return "", false
	}
	return strings.TrimPrefix(o.ID, DMPrefix), true
}

// Outcome returns the encoded outcome carried by an outcome: info observation.
func (o Observation) Outcome() (string, bool) {
	if o.Kind != KindInfo || !strings.HasPrefix(o.ID, OutcomePrefix) {
		return "", false
	}
	return strings.TrimPrefix(o.ID, OutcomePrefix), true
}

var (
	perceptionFields = fieldSet("type", "actorId", "tick", "observations", "world")
	intentFields     = fieldSet("type", "actorId", "goal", "intent", "rationale", "suggestedDC", "candidateActions")
)

type perceptionWire PerceptionEvent

func (e PerceptionEvent) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(perceptionWire(e), e.Extra)
}

func (e *PerceptionEvent) UnmarshalJSON(b []byte) error {
	var w perceptionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	extra, err := extraFields(b, perceptionFields)
	if err != nil {
		return err
	}
	*e = PerceptionEvent(w)
	e.Extra = extra
	return nil
}

type intentWire IntentProposal

func (p IntentProposal) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(intentWire(p), p.Extra)
}

func (p *IntentProposal) UnmarshalJSON(b []byte) error {
	var w intentWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	extra, err := extraFields(b, intentFields)
	if err != nil {
		return err
	}
	*p = IntentProposal(w)
	p.Extra = extra
	for i := range p.CandidateActions {
		if p.CandidateActions[i].Params == nil {
			p.CandidateActions[i].Params = map[string]any{}
		}
	}
	return nil
}

func fieldSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func extraFields(b []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		extra[k] = v
	}
	return extra, nil
}

func marshalWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, taken := all[k]; taken {
			continue
		}
		all[k] = v
	}
	return json.Marshal(all)
}
