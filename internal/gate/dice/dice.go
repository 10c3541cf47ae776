// Package dice implements the d20 roll and difficulty check used by the
// resolution gate.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

const (
	MinDC     = 5
	MaxDC     = 20
	DefaultDC = 10

	Sides = 20
)

// ErrBadScript indicates a scripted roller was given a value outside 1..20.
var ErrBadScript = errors.New("scripted rolls must be between 1 and 20")

// Roller produces uniformly distributed d20 results.
type Roller interface {
	D20() int
}

// Seeded is a Roller backed by math/rand. Safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeeded returns a roller that yields the same sequence for the same seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: rand.New(rand.NewSource(seed))}
}

// NewRandom seeds a roller from crypto/rand.
func NewRandom() (*Seeded, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeeded(seed), nil
}

func (s *Seeded) D20() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(Sides) + 1
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Scripted replays a fixed list of rolls, wrapping around at the end.
type Scripted struct {
	mu    sync.Mutex
	rolls []int
	next  int
}

func NewScripted(rolls ...int) (*Scripted, error) {
	if len(rolls) == 0 {
		return nil, ErrBadScript
	}
	for _, r := range rolls {
		if r < 1 || r > Sides {
			return nil, ErrBadScript
		}
	}
	return &Scripted{rolls: append([]int(nil), rolls...)}, nil
}

func (s *Scripted) D20() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rolls[s.next%len(s.rolls)]
	s.next++
	return r
}

// ClampDC forces dc into [MinDC, MaxDC].
func ClampDC(dc int) int {
	if dc < MinDC {
		return MinDC
	}
	if dc > MaxDC {
		return MaxDC
	}
	return dc
}

// ClampDCFloat rounds half to even and clamps. NaN yields DefaultDC.
func ClampDCFloat(dc float64) int {
	if math.IsNaN(dc) {
		return DefaultDC
	}
	if dc <= MinDC {
		return MinDC
	}
	if dc >= MaxDC {
		return MaxDC
	}
	return ClampDC(int(math.RoundToEven(dc)))
}

// Meets returns true if roll >= dc.
func Meets(roll, dc int) bool {
	return roll >= dc
}
