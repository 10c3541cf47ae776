package action

import "brainlink.ai/internal/mathx"

// Agent is the in-world body a resolved action acts on.
type Agent interface {
	ID() string
	Position() mathx.Vec3
	SetPosition(mathx.Vec3)
}

// Navigator is implemented by agents that can walk to a destination instead
// of being placed there.
type Navigator interface {
	OnNavSurface() bool
	SetDestination(mathx.Vec3) error
}

// PartySync receives the live position of an actor after it acted.
type PartySync interface {
	SyncPosition(actorID string, pos mathx.Vec3)
}

// Flasher shows a short success or failure highlight on an actor.
type Flasher interface {
	Flash(actorID string, success bool)
}
