package testutil

import "sync"

// Clock hands out origin_server_ts values for fixture events.
//
// Timestamps only break ties in state resolution, so fixtures need them to
// be distinct and increasing in creation order, never wall-clock time.
// Reset lets a test rebuild the same room with identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu    sync.Mutex
	start int64
	ts    int64
}

// NewClock creates a clock whose first Next() returns start+1.
func NewClock(start int64) *Clock {
	return &Clock{start: start, ts: start}
}

// Next advances the clock by one millisecond and returns the new value.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts++
	return c.ts
}

// Current returns the last value handed out, or start.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}

// Reset rewinds the clock to its start.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts = c.start
}
