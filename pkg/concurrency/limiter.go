// Package concurrency provides the counting semaphore that bounds how many
// loop items or parallel substeps run at once.
package concurrency

import (
	"context"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of limiter usage counters.
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter is a semaphore-based concurrency limiter with usage metrics. A
// limiter created with max <= 0 is unlimited: Acquire never blocks but still
// observes context cancellation and counts usage.
type Limiter struct {
	sem    chan struct{}
	active int64

	totalAcquired   int64
	totalReleased   int64
	peakConcurrent  int64
	totalWaitTimeNs int64
}

// New creates a limiter admitting up to max concurrent holders; max <= 0
// means unlimited.
func New(max int) *Limiter {
	l := &Limiter{}
	if max > 0 {
		l.sem = make(chan struct{}, max)
	}
	return l
}

// Acquire claims a slot, blocking until one frees up or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()

	if l.sem == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	} else {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	atomic.AddInt64(&l.totalWaitTimeNs, time.Since(start).Nanoseconds())
	atomic.AddInt64(&l.totalAcquired, 1)
	l.updatePeak(atomic.AddInt64(&l.active, 1))
	return nil
}

// Release returns a slot to the limiter. Calls must pair with a successful
// Acquire.
func (l *Limiter) Release() {
	if l.sem != nil {
		select {
		case <-l.sem:
		default:
			return
		}
	}
	atomic.AddInt64(&l.active, -1)
	atomic.AddInt64(&l.totalReleased, 1)
}

// CurrentActive returns the number of currently held slots.
func (l *Limiter) CurrentActive() int64 {
	return atomic.LoadInt64(&l.active)
}

// Snapshot returns a copy of the usage counters.
func (l *Limiter) Snapshot() Metrics {
	return Metrics{
		TotalAcquired:   atomic.LoadInt64(&l.totalAcquired),
		TotalReleased:   atomic.LoadInt64(&l.totalReleased),
		PeakConcurrent:  atomic.LoadInt64(&l.peakConcurrent),
		TotalWaitTimeNs: atomic.LoadInt64(&l.totalWaitTimeNs),
	}
}

// AverageWaitTime reports the mean time spent waiting in Acquire.
func (l *Limiter) AverageWaitTime() time.Duration {
	m := l.Snapshot()
	if m.TotalAcquired == 0 {
		return 0
	}
	return time.Duration(m.TotalWaitTimeNs / m.TotalAcquired)
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.peakConcurrent)
		if current <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&l.peakConcurrent, peak, current) {
			return
		}
	}
}
