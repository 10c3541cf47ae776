package scene

import (
	"errors"
	"sync"
	"time"

	"brainlink.ai/internal/mathx"
)

var ErrOffNav = errors.New("body is not on a navigation surface")

// Body is an actor's in-world presence. It satisfies action.Agent and
// action.Navigator.
type Body struct {
	id string

	mu    sync.Mutex
	pos   mathx.Vec3
	onNav bool
	dest  *mathx.Vec3
	speed float64
}

func (b *Body) ID() string { return b.id }

func (b *Body) Position() mathx.Vec3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

// SetPosition places the body and cancels any walk in progress.
func (b *Body) SetPosition(p mathx.Vec3) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = p
	b.dest = nil
}

func (b *Body) OnNavSurface() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onNav
}

func (b *Body) SetNav(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onNav = on
	if !on {
		b.dest = nil
	}
}

func (b *Body) SetDestination(p mathx.Vec3) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.onNav {
		return ErrOffNav
	}
	d := p
	b.dest = &d
	return nil
}

// Destination reports the walk target, if any.
func (b *Body) Destination() (mathx.Vec3, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dest == nil {
		return mathx.Vec3{}, false
	}
	return *b.dest, true
}

func (b *Body) advance(dt time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dest == nil || b.speed <= 0 {
		return
	}
	b.pos = mathx.StepTowards(b.pos, *b.dest, b.speed*dt.Seconds())
	if b.pos == *b.dest {
		b.dest = nil
	}
}
