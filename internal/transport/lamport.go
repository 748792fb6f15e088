package transport

import "sync/atomic"

// LamportClock orders the send/receive events of one worker. Spec §5: a
// coroutine yield point corresponds to a network round-trip, and the
// clock is incremented once on every Send and once on every completed
// Recv. It exists for
// debug consistency checks only — no protocol decision depends on its
// value.
type LamportClock struct {
	v uint64
}

// Tick advances the clock by one and returns the new value.
func (c *LamportClock) Tick() uint64 {
	return atomic.AddUint64(&c.v, 1)
}

// Value returns the current clock value without advancing it.
func (c *LamportClock) Value() uint64 {
	return atomic.LoadUint64(&c.v)
}
