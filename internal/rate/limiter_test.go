package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTryAdmitWindowCeiling(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := NewLimiter(3, time.Minute, clock.now)

	require.True(t, l.TryAdmit())
	require.True(t, l.TryAdmit())
	require.True(t, l.TryAdmit())
	require.False(t, l.TryAdmit(), "fourth admission inside the window must be denied")
	require.Equal(t, 0, l.Available())

	// The oldest stamp leaves the window; exactly one slot frees up.
	clock.advance(61 * time.Second)
	require.Equal(t, 3, l.Available())
	require.True(t, l.TryAdmit())
}

func TestTryAdmitSlidingNotFixed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := NewLimiter(2, time.Minute, clock.now)

	require.True(t, l.TryAdmit())
	clock.advance(30 * time.Second)
	require.True(t, l.TryAdmit())
	require.False(t, l.TryAdmit())

	// 31s later the first stamp has expired but the second has not.
	clock.advance(31 * time.Second)
	require.True(t, l.TryAdmit())
	require.False(t, l.TryAdmit())
}

func TestAdmitBlocksUntilSlotFrees(t *testing.T) {
	l := NewLimiter(2, 80*time.Millisecond, nil)
	ctx := context.Background()

	require.NoError(t, l.Admit(ctx))
	require.NoError(t, l.Admit(ctx))

	start := time.Now()
	require.NoError(t, l.Admit(ctx))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"third admission must wait for the window to slide")
}

func TestAdmitHonorsCancellation(t *testing.T) {
	l := NewLimiter(1, time.Minute, nil)
	require.NoError(t, l.Admit(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.Admit(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdmitNeverExceedsWindow(t *testing.T) {
	const (
		max    = 5
		window = 100 * time.Millisecond
	)
	l := NewLimiter(max, window, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Admit(ctx); err != nil {
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Every window-sized slice of the admission log must hold at most max
	// entries. Allow a small scheduling skew on the comparison.
	for i := range stamps {
		count := 0
		for j := range stamps {
			d := stamps[j].Sub(stamps[i])
			if d >= 0 && d < window-5*time.Millisecond {
				count++
			}
		}
		require.LessOrEqual(t, count, max)
	}
}
