package session

import (
	"context"
	"time"
)

// ReapInterval is how often the session reaper sweeps the Binder, per
// spec.md §4.4.
const ReapInterval = 15 * time.Minute

// RunReaper sweeps b on ReapInterval until ctx is cancelled.
func (b *Binder) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.ReapExpired()
		}
	}
}
