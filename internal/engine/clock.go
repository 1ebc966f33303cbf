package engine

import "sync/atomic"

// Clock is a monotonic logical step counter.
//
// Each step takes a strictly increasing seq from Next. Replaying a run with
// the same inputs visits the same seqs, so simulated time is reproducible.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though only the scheduler's step loop normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at start, for resuming a run after start
// completed steps.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out, without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
