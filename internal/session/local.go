package session

import (
	"context"
	"time"

	"brainlink.ai/internal/protocol"
)

// RunLocal drives the registry without a gateway: every tick the scene is
// advanced and next supplies one proposal, which goes through the same
// encode, validate and stage path as a received frame.
func (r *Registry) RunLocal(ctx context.Context, next func() protocol.IntentProposal, every time.Duration) error {
	if every <= 0 {
		every = 2 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			r.Perceptions(now)
			b, err := protocol.EncodeIntent(next())
			if err != nil {
				r.logger.Printf("local proposal rejected: %v", err)
				continue
			}
			if err := r.HandleFrame(ctx, b); err != nil {
				r.logger.Printf("local proposal: %v", err)
			}
		}
	}
}
