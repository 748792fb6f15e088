// Package coro implements the cooperative-coroutine driver described in
// spec §5: every algorithm that issues MPC messages runs as a coroutine
// and yields at each round boundary; a top-level driver interleaves the
// live coroutines of one worker, flushing the transport between rounds.
//
// Go has no native stackful coroutines, so a Handle is a goroutine
// blocked on a pair of channels: Yield() hands control back to the
// driver and blocks until resumed. This preserves the contract spec §5
// requires ("stack-switching coroutines, async tasks with explicit
// await, or hand-written state machines all satisfy the contract") —
// here it's a goroutine parked on a channel receive.
package coro

// Handle lets a running coroutine yield control to the driver, and lets
// the driver observe whether the coroutine has finished.
type Handle struct {
	resume chan struct{}
	event  chan event

	done bool
	err  error
}

type event struct {
	done bool
	err  error
}

// Yield suspends the coroutine until the driver resumes it. Every MPC
// primitive, CDPF compare, and Duoram access calls Yield exactly at its
// round boundary, after queuing everything it intends to send.
func (h *Handle) Yield() {
	h.event <- event{}
	<-h.resume
}

// Go starts fn as a coroutine and returns a Handle the driver can poll
// and resume. fn must call h.Yield() at every round boundary and must
// have queued all outgoing bytes before yielding (spec §5).
func Go(fn func(h *Handle) error) *Handle {
	h := &Handle{
		resume: make(chan struct{}),
		event:  make(chan event, 1),
	}
	go func() {
		err := fn(h)
		h.event <- event{done: true, err: err}
	}()
	return h
}

// Done reports whether the coroutine has finished (successfully or not).
// Valid only after the driver has observed its final event.
func (h *Handle) Done() bool { return h.done }

// Err returns the error the coroutine finished with, if any. Valid only
// once Done reports true.
func (h *Handle) Err() error { return h.err }
