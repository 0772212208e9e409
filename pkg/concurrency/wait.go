package concurrency

import (
	"context"
	"time"
)

// Sleep pauses for d, returning early with the context error if ctx is done
// first. A non-positive d does not block. Loop and parallel steps use this to
// stagger successive launches.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
