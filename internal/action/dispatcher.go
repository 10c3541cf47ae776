package action

import (
	"errors"
	"io"
	"log"

	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/protocol"
)

var ErrNoAgent = errors.New("action needs an agent")

// Via reports how a move was applied.
type Via string

const (
	ViaNone     Via = ""
	ViaNav      Via = "nav"
	ViaTeleport Via = "teleport"
)

// Effect describes what one Execute call changed.
type Effect struct {
	Kind   Kind
	Action Action

	Moved bool
	Via   Via
	Dest  mathx.Vec3

	Acknowledged bool
	Unhandled    bool

	Err error
}

type handler func(d *Dispatcher, actorID string, a Action, agent Agent) Effect

// Dispatcher maps a resolved candidate onto world changes.
type Dispatcher struct {
	Party  PartySync
	Flash  Flasher
	Logger *log.Logger

	handlers map[Kind]handler
}

func NewDispatcher(party PartySync, flash Flasher, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{
		Party:  party,
		Flash:  flash,
		Logger: logger,
		handlers: map[Kind]handler{
			KindIdle:    noop,
			KindWait:    noop,
			KindMove:    move,
			KindTalk:    acknowledge(true),
			KindInspect: acknowledge(false),
		},
	}
}

// Execute applies exactly one candidate for actorID.
func (d *Dispatcher) Execute(actorID string, c protocol.CandidateAction, agent Agent) Effect {
	a, err := Parse(c)
	if err != nil {
		d.Logger.Printf("action rejected actor=%s action=%s err=%v", actorID, c.Action, err)
		return Effect{Kind: a.Kind, Action: a, Err: err}
	}
	h, ok := d.handlers[a.Kind]
	if !ok {
		d.Logger.Printf("unhandled action actor=%s action=%q", actorID, a.Name)
		return Effect{Kind: a.Kind, Action: a, Unhandled: true}
	}
	eff := h(d, actorID, a, agent)
	eff.Kind = a.Kind
	eff.Action = a
	if eff.Err == nil && agent != nil && a.Kind != KindIdle && a.Kind != KindWait && d.Party != nil {
		d.Party.SyncPosition(actorID, agent.Position())
	}
	return eff
}

func noop(*Dispatcher, string, Action, Agent) Effect { return Effect{} }

func move(d *Dispatcher, actorID string, a Action, agent Agent) Effect {
	if agent == nil {
		d.Logger.Printf("move skipped actor=%s: no agent", actorID)
		return Effect{Err: ErrNoAgent}
	}
	dest := agent.Position().Add(a.Offset())
	if nav, ok := agent.(Navigator); ok && nav.OnNavSurface() {
		err := nav.SetDestination(dest)
		if err == nil {
			return Effect{Moved: true, Via: ViaNav, Dest: dest}
		}
		d.Logger.Printf("nav failed actor=%s dest=%v err=%v; teleporting", actorID, dest, err)
	}
	agent.SetPosition(dest)
	return Effect{Moved: true, Via: ViaTeleport, Dest: dest}
}

func acknowledge(success bool) handler {
	return func(d *Dispatcher, actorID string, _ Action, _ Agent) Effect {
		if d.Flash != nil {
			d.Flash.Flash(actorID, success)
		}
		return Effect{Acknowledged: true}
	}
}
