package browser

import (
	"context"
	"time"
)

// ReapInterval is how often the idle reaper sweeps the pool, per spec.md
// §4.2.
const ReapInterval = 5 * time.Minute

// RunReaper sweeps p on ReapInterval until ctx is cancelled. Meant to run
// as a single background goroutine started by the composition root.
func (p *Pool) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ReapIdle()
		}
	}
}
