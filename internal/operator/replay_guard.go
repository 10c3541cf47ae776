package operator

import (
	"sync"
	"time"
)

const (
	replayTTL     = 10 * time.Minute
	replayPruneAt = 4096
	replayHardCap = 65536
)

// replayGuard rejects a signed command seen again before its ttl runs out.
type replayGuard struct {
	mu        sync.Mutex
	ttl       time.Duration
	expires   map[string]time.Time
	lastPrune time.Time
}

func newReplayGuard(ttl time.Duration) *replayGuard {
	if ttl <= 0 {
		ttl = replayTTL
	}
	return &replayGuard{ttl: ttl, expires: map[string]time.Time{}}
}

func (g *replayGuard) allow(caller, signature string, now time.Time) bool {
	if g == nil || signature == "" {
		return true
	}
	key := caller + "|" + signature

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.expires) > replayPruneAt || now.Sub(g.lastPrune) > g.ttl/2 {
		for k, exp := range g.expires {
			if !exp.After(now) {
				delete(g.expires, k)
			}
		}
		g.lastPrune = now
	}
	if exp, ok := g.expires[key]; ok && exp.After(now) {
		return false
	}
	if len(g.expires) >= replayHardCap {
		g.expires = map[string]time.Time{}
	}
	g.expires[key] = now.Add(g.ttl)
	return true
}
