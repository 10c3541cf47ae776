package action

import (
	"errors"
	"fmt"

	"brainlink.ai/internal/mathx"
	"brainlink.ai/internal/protocol"
)

type Kind int

const (
	KindIdle Kind = iota
	KindWait
	KindMove
	KindTalk
	KindInspect
	// KindCustom is any action name the dispatcher has no handler for.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindWait:
		return "wait"
	case KindMove:
		return "move"
	case KindTalk:
		return "talk"
	case KindInspect:
		return "inspect"
	default:
		return "custom"
	}
}

var kindsByName = map[string]Kind{
	"idle":    KindIdle,
	"wait":    KindWait,
	"move":    KindMove,
	"talk":    KindTalk,
	"inspect": KindInspect,
}

func KindOf(name string) Kind {
	if k, ok := kindsByName[name]; ok {
		return k
	}
	return KindCustom
}

var ErrMoveParams = errors.New("move requires numeric destDX and destDZ")

// Action is a candidate parsed into a closed set of kinds.
type Action struct {
	Kind Kind
	// Name is the wire action name, kept for KindCustom.
	Name   string
	DX, DZ float64
	Params map[string]any
}

// Offset is the move displacement in the horizontal plane.
func (a Action) Offset() mathx.Vec3 { return mathx.Vec3{X: a.DX, Z: a.DZ} }

func Parse(c protocol.CandidateAction) (Action, error) {
	a := Action{Kind: KindOf(c.Action), Name: c.Action, Params: c.Params}
	if a.Kind != KindMove {
		return a, nil
	}
	dx, okX := c.Float("destDX")
	dz, okZ := c.Float("destDZ")
	if !okX || !okZ {
		return a, fmt.Errorf("%w (got %v)", ErrMoveParams, c.Params)
	}
	a.DX, a.DZ = dx, dz
	return a, nil
}
