package coro

// RunCoroutines interleaves the given coroutines to completion. On each
// round it waits for every still-live coroutine to yield (or finish),
// calls sendAll (the transport's flush-everything hook), then resumes
// every coroutine that has not finished. It returns the first error any
// coroutine finished with, if any, after every coroutine has completed —
// matching the "no partial retries" rule of spec §7.
func RunCoroutines(handles []*Handle, sendAll func()) error {
	live := make([]*Handle, len(handles))
	copy(live, handles)

	var firstErr error
	for len(live) > 0 {
		for _, h := range live {
			ev := <-h.event
			h.done = ev.done
			h.err = ev.err
			if ev.done && ev.err != nil && firstErr == nil {
				firstErr = ev.err
			}
		}

		sendAll()

		next := live[:0]
		for _, h := range live {
			if h.done {
				continue
			}
			next = append(next, h)
		}
		live = next

		for _, h := range live {
			h.resume <- struct{}{}
		}
	}
	return firstErr
}
