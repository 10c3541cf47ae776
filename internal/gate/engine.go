package gate

import (
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"brainlink.ai/internal/action"
	"brainlink.ai/internal/gate/dice"
	"brainlink.ai/internal/protocol"
)

var (
	ErrNothingStaged = errors.New("no proposal staged for actor")
	ErrNoAgent       = errors.New("no agent known for actor")
)

// OutcomeSink stores the result of every roll.
type OutcomeSink interface {
	Report(actorID string, success bool, roll, dc int)
}

// Executor applies one resolved candidate.
type Executor interface {
	Execute(actorID string, c protocol.CandidateAction, agent action.Agent) action.Effect
}

// AgentResolver finds the in-world body of an actor when none was staged.
type AgentResolver func(actorID string) action.Agent

// JournalEntry is one roll as seen by operators.
type JournalEntry struct {
	Time           time.Time `json:"time"`
	ActorID        string    `json:"actorId"`
	Trigger        string    `json:"trigger"`
	Goal           string    `json:"goal"`
	Intent         string    `json:"intent"`
	Roll           int       `json:"roll"`
	DC             int       `json:"dc"`
	Success        bool      `json:"success"`
	CandidateIndex int       `json:"candidateIndex"`
	Action         string    `json:"action,omitempty"`
	Moved          bool      `json:"moved,omitempty"`
	Unhandled      bool      `json:"unhandled,omitempty"`
}

type Journal interface {
	WriteResolution(JournalEntry) error
}

// Resolution is the result of one roll.
type Resolution struct {
	ActorID        string
	Roll           int
	DC             int
	Success        bool
	CandidateIndex int
	// Candidate and Effect are set only on success.
	Candidate *protocol.CandidateAction
	Effect    action.Effect
}

type EngineConfig struct {
	Roller   dice.Roller
	Outcomes OutcomeSink
	Executor Executor
	Flasher  action.Flasher
	Journal  Journal
	Agents   AgentResolver

	RespectSuggestedDC bool
	Logger             *log.Logger
}

// Engine rolls staged proposals. Each resolution holds the actor's slot lock
// from DC selection until dispatch, so a concurrent Stage waits for it.
type Engine struct {
	stage *Stage
	cfg   EngineConfig

	respect atomic.Bool
	now     func() time.Time
}

func NewEngine(stage *Stage, cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Roller == nil {
		cfg.Roller = dice.NewSeeded(time.Now().UnixNano())
	}
	e := &Engine{stage: stage, cfg: cfg, now: time.Now}
	e.respect.Store(cfg.RespectSuggestedDC)
	return e
}

func (e *Engine) Stage() *Stage { return e.stage }

func (e *Engine) SetRespectSuggested(v bool) { e.respect.Store(v) }

func (e *Engine) RespectSuggested() bool { return e.respect.Load() }

func (e *Engine) SetDC(actorID string, dc int) int { return e.stage.SetDC(actorID, dc) }

func (e *Engine) SetDefaultDC(dc int) int { return e.stage.SetDefaultDC(dc) }

// Resolve rolls the staged proposal for actorID. Without a staged proposal
// or an agent nothing is rolled, reported or dispatched.
func (e *Engine) Resolve(actorID string) (Resolution, error) {
	return e.resolve(actorID, "roll")
}

// Reroll repeats the check on the proposal already staged for actorID.
func (e *Engine) Reroll(actorID string) (Resolution, error) {
	return e.resolve(actorID, "reroll")
}

// StageAndResolve stages p and rolls it immediately.
func (e *Engine) StageAndResolve(actorID string, p protocol.IntentProposal, agent action.Agent) (Resolution, error) {
	e.stage.Stage(actorID, p, agent)
	return e.resolve(actorID, "auto")
}

func (e *Engine) resolve(actorID, trigger string) (Resolution, error) {
	s := e.stage.get(actorID)
	if s == nil {
		return Resolution{}, ErrNothingStaged
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proposal == nil {
		return Resolution{}, ErrNothingStaged
	}
	if s.agent == nil && e.cfg.Agents != nil {
		s.agent = e.cfg.Agents(actorID)
	}
	if s.agent == nil {
		e.cfg.Logger.Printf("resolve skipped actor=%s: %v", actorID, ErrNoAgent)
		return Resolution{}, ErrNoAgent
	}
	p := s.proposal

	if e.respect.Load() && p.SuggestedDC != nil {
		s.dc = dice.ClampDCFloat(*p.SuggestedDC)
	}
	dc := s.dc
	roll := e.cfg.Roller.D20()
	success := dice.Meets(roll, dc)
	s.lastRoll = roll

	if e.cfg.Outcomes != nil {
		e.cfg.Outcomes.Report(actorID, success, roll, dc)
	}
	if e.cfg.Flasher != nil {
		e.cfg.Flasher.Flash(actorID, success)
	}

	res := Resolution{ActorID: actorID, Roll: roll, DC: dc, Success: success, CandidateIndex: s.clampIndex()}
	switch {
	case success && len(p.CandidateActions) > 0:
		s.phase = PhaseResolvedSuccess
		c := p.CandidateActions[res.CandidateIndex]
		res.Candidate = &c
		if e.cfg.Executor != nil {
			res.Effect = e.cfg.Executor.Execute(actorID, c, s.agent)
		}
	case success:
		s.phase = PhaseResolvedSuccess
	default:
		s.phase = PhaseResolvedFail
	}
	e.cfg.Logger.Printf("%s actor=%s intent=%s roll=%d dc=%d success=%v candidate=%d",
		trigger, actorID, p.Intent, roll, dc, success, res.CandidateIndex)

	if e.cfg.Journal != nil {
		entry := JournalEntry{
			Time:           e.now().UTC(),
			ActorID:        actorID,
			Trigger:        trigger,
			Goal:           p.Goal,
			Intent:         p.Intent,
			Roll:           roll,
			DC:             dc,
			Success:        success,
			CandidateIndex: res.CandidateIndex,
			Moved:          res.Effect.Moved,
			Unhandled:      res.Effect.Unhandled,
		}
		if res.Candidate != nil {
			entry.Action = res.Candidate.Action
		}
		if err := e.cfg.Journal.WriteResolution(entry); err != nil {
			e.cfg.Logger.Printf("journal write failed actor=%s: %v", actorID, err)
		}
	}
	return res, nil
}
