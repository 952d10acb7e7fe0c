// Package budget tracks cumulative inference spend and call count against a
// hard per-run ceiling. One Controller is constructed per document run and
// never shared across runs.
package budget

import (
	"fmt"
	"sync"
)

// Controller vetoes further calls once the ceiling is reached. Reserve must
// be checked immediately before every outbound attempt, retries included;
// Commit records actual spend afterwards whether the call succeeded or not,
// since a failed call still consumed inference cost.
type Controller struct {
	mu       sync.Mutex
	ceiling  float64
	spent    float64
	reserved float64
	calls    int
}

func NewController(ceilingUSD float64) *Controller {
	return &Controller{ceiling: ceilingUSD}
}

// Reserve asks for headroom for one call with the given estimated cost.
// A denial is terminal for the caller: budget is never replenished mid-run,
// so retrying a denied reservation can only burn time.
func (c *Controller) Reserve(estimatedCost float64) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spent+c.reserved+estimatedCost > c.ceiling {
		return false, fmt.Sprintf("budget exhausted: spent %.4f + reserved %.4f + est %.4f > ceiling %.4f",
			c.spent, c.reserved, estimatedCost, c.ceiling)
	}
	c.reserved += estimatedCost
	return true, ""
}

// Commit settles a reservation with the actual cost of the call.
func (c *Controller) Commit(estimatedCost, actualCost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved -= estimatedCost
	if c.reserved < 0 {
		c.reserved = 0
	}
	c.spent += actualCost
	c.calls++
}

// Release cancels a reservation whose call never went out (e.g. admission
// was cancelled). No spend, no call counted.
func (c *Controller) Release(estimatedCost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved -= estimatedCost
	if c.reserved < 0 {
		c.reserved = 0
	}
}

// Remaining reports uncommitted headroom.
func (c *Controller) Remaining() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	rem := c.ceiling - c.spent - c.reserved
	if rem < 0 {
		return 0
	}
	return rem
}

// Spent reports committed spend so far.
func (c *Controller) Spent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent
}

// Calls reports the number of committed calls.
func (c *Controller) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
