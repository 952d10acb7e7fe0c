// Package rate provides the sliding-window admission gate in front of the
// vision inference provider. Admission decisions are linearizable: no window
// of the configured duration ever observes more than the configured maximum
// admissions.
package rate

import (
	"context"
	"sync"
	"time"
)

// minWait is the sleep floor; without it a caller racing the window edge
// would spin on zero-length waits.
const minWait = 5 * time.Millisecond

// Limiter admits at most max calls per rolling window.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	stamps []time.Time
	now    func() time.Time
}

// NewLimiter builds a limiter admitting maxPerWindow calls per window.
// now may be nil; it exists so tests can drive the clock.
func NewLimiter(maxPerWindow int, window time.Duration, now func() time.Time) *Limiter {
	if maxPerWindow <= 0 {
		maxPerWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		window: window,
		max:    maxPerWindow,
		stamps: make([]time.Time, 0, maxPerWindow),
		now:    now,
	}
}

// Admit blocks until a call slot is available or ctx is cancelled. Rather
// than polling on a fixed interval it computes the exact wait until the
// oldest recorded call leaves the window.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait < minWait {
			wait = minWait
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAdmit takes a slot without blocking; false when the window is full.
func (l *Limiter) TryAdmit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Available reports the free slots in the current window (diagnostics only).
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return l.max - len(l.stamps)
}

// prune drops timestamps that have left the window. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
