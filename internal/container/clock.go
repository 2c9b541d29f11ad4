package container

import "sync/atomic"

// Clock hands out increasing sequence numbers: operation ids inside the
// container, snapshot seqs in the saved-state decorator. Numbers never come
// from wall-clock time.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first Next is after+1. Pass the seq of a
// restored snapshot so numbering keeps increasing across restarts.
func NewClock(after int64) *Clock {
	c := &Clock{}
	c.last.Store(after)
	return c
}

// Next issues the next number. Safe for concurrent use.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently issued number, or the start value if none
// was issued yet.
func (c *Clock) Last() int64 {
	return c.last.Load()
}
