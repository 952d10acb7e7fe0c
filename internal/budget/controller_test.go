package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReserveDeniesOverCeiling(t *testing.T) {
	c := NewController(0.50)

	ok, reason := c.Reserve(0.25)
	require.True(t, ok)
	require.Empty(t, reason)

	ok, _ = c.Reserve(0.25)
	require.True(t, ok)

	// ceiling fully reserved; the next call would breach it.
	ok, reason = c.Reserve(0.25)
	require.False(t, ok)
	require.Contains(t, reason, "budget exhausted")
}

func TestCommitSettlesReservationWithActual(t *testing.T) {
	c := NewController(1.00)

	ok, _ := c.Reserve(0.25)
	require.True(t, ok)
	c.Commit(0.25, 0.125)

	require.InDelta(t, 0.125, c.Spent(), 1e-9)
	require.InDelta(t, 0.875, c.Remaining(), 1e-9)
	require.Equal(t, 1, c.Calls())
}

func TestFailedCallStillCounts(t *testing.T) {
	c := NewController(1.00)

	ok, _ := c.Reserve(0.25)
	require.True(t, ok)
	// Transport failure: the attempt consumed cost at the estimate.
	c.Commit(0.25, 0.25)

	require.InDelta(t, 0.25, c.Spent(), 1e-9)
	require.Equal(t, 1, c.Calls())
}

func TestReleaseReturnsHeadroomWithoutSpend(t *testing.T) {
	c := NewController(0.50)

	ok, _ := c.Reserve(0.25)
	require.True(t, ok)
	ok, _ = c.Reserve(0.25)
	require.True(t, ok)
	ok, _ = c.Reserve(0.25)
	require.False(t, ok)

	c.Release(0.25)
	ok, _ = c.Reserve(0.25)
	require.True(t, ok)
	require.Zero(t, c.Calls())
	require.Zero(t, c.Spent())
}

func TestConcurrentReservationsNeverBreachCeiling(t *testing.T) {
	c := NewController(1.25)
	const est = 0.25

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.Reserve(est); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, granted, "exactly ceiling/estimate reservations may be granted")
}
