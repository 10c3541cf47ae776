// Package gate holds staged intent proposals and resolves them with a d20
// roll against a difficulty class.
package gate

import (
	"sync"

	"brainlink.ai/internal/action"
	"brainlink.ai/internal/gate/dice"
	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/protocol"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStaged
	PhaseResolvedSuccess
	PhaseResolvedFail
)

func (p Phase) String() string {
	switch p {
	case PhaseStaged:
		return "staged"
	case PhaseResolvedSuccess:
		return "resolved_success"
	case PhaseResolvedFail:
		return "resolved_fail"
	default:
		return "idle"
	}
}

// slot is the resolution state of one actor. Fields are guarded by mu.
type slot struct {
	mu sync.Mutex

	proposal *protocol.IntentProposal
	agent    action.Agent
	index    int
	dc       int
	phase    Phase
	lastRoll int
}

func (s *slot) clampIndex() int {
	if s.proposal == nil || len(s.proposal.CandidateActions) == 0 {
		return 0
	}
	return mathx.ClampInt(s.index, 0, len(s.proposal.CandidateActions)-1)
}

// ActorView is a copy of one actor's slot.
type ActorView struct {
	ActorID        string                   `json:"actorId"`
	Proposal       *protocol.IntentProposal `json:"proposal,omitempty"`
	HasAgent       bool                     `json:"hasAgent"`
	CandidateIndex int                      `json:"candidateIndex"`
	DC             int                      `json:"dc"`
	Phase          string                   `json:"phase"`
	LastRoll       int                      `json:"lastRoll,omitempty"`
}

// Stage keeps at most one pending proposal per actor. Slots are created on
// first use and live for the whole session.
type Stage struct {
	mu        sync.Mutex
	slots     map[string]*slot
	order     []string
	defaultDC int
}

func NewStage(defaultDC int) *Stage {
	return &Stage{slots: map[string]*slot{}, defaultDC: dice.ClampDC(defaultDC)}
}

func (st *Stage) get(actorID string) *slot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.slots[actorID]
}

func (st *Stage) getOrCreate(actorID string) *slot {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.slots[actorID]
	if s == nil {
		s = &slot{dc: st.defaultDC}
		st.slots[actorID] = s
		st.order = append(st.order, actorID)
	}
	return s
}

// Stage replaces any pending proposal for actorID and resets the candidate
// index. A nil agent keeps the previously known agent.
func (st *Stage) Stage(actorID string, p protocol.IntentProposal, agent action.Agent) {
	s := st.getOrCreate(actorID)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	cp.CandidateActions = append([]protocol.CandidateAction(nil), p.CandidateActions...)
	s.proposal = &cp
	if agent != nil {
		s.agent = agent
	}
	s.index = 0
	s.phase = PhaseStaged
}

// Staged returns the pending proposal for actorID.
func (st *Stage) Staged(actorID string) (protocol.IntentProposal, bool) {
	s := st.get(actorID)
	if s == nil {
		return protocol.IntentProposal{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proposal == nil {
		return protocol.IntentProposal{}, false
	}
	return *s.proposal, true
}

// CycleCandidate moves the candidate index by delta, clamped to the staged
// proposal's candidates. It reports false when nothing is staged.
func (st *Stage) CycleCandidate(actorID string, delta int) (int, bool) {
	s := st.get(actorID)
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proposal == nil {
		return 0, false
	}
	s.index += delta
	s.index = s.clampIndex()
	return s.index, true
}

// SetCandidate sets the candidate index directly, clamped.
func (st *Stage) SetCandidate(actorID string, index int) (int, bool) {
	s := st.get(actorID)
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proposal == nil {
		return 0, false
	}
	s.index = index
	s.index = s.clampIndex()
	return s.index, true
}

// SetAgent attaches the in-world body used for later resolutions.
func (st *Stage) SetAgent(actorID string, agent action.Agent) {
	s := st.getOrCreate(actorID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent = agent
}

func (st *Stage) Snapshot(actorID string) (ActorView, bool) {
	s := st.get(actorID)
	if s == nil {
		return ActorView{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := ActorView{
		ActorID:        actorID,
		HasAgent:       s.agent != nil,
		CandidateIndex: s.clampIndex(),
		DC:             s.dc,
		Phase:          s.phase.String(),
		LastRoll:       s.lastRoll,
	}
	if s.proposal != nil {
		cp := *s.proposal
		v.Proposal = &cp
	}
	return v, true
}

// Actors lists every actor with a slot in first-use order.
func (st *Stage) Actors() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.order...)
}

// SetDC clamps dc and makes it the actor's current DC.
func (st *Stage) SetDC(actorID string, dc int) int {
	s := st.getOrCreate(actorID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc = dice.ClampDC(dc)
	return s.dc
}

// SetDefaultDC changes the DC of every existing slot and of slots created
// later.
func (st *Stage) SetDefaultDC(dc int) int {
	dc = dice.ClampDC(dc)
	st.mu.Lock()
	st.defaultDC = dc
	slots := make([]*slot, 0, len(st.slots))
	for _, s := range st.slots {
		slots = append(slots, s)
	}
	st.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		s.dc = dc
		s.mu.Unlock()
	}
	return dc
}

func (st *Stage) DefaultDC() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.defaultDC
}
