package coro

import "golang.org/x/sync/errgroup"

// WorkerFunc is the body run by one OS-level worker thread (spec §5): it
// sets up its own coroutines against its own transport context and
// drives them to completion, returning the first error encountered.
type WorkerFunc func(worker int) error

// RunWorkers launches numThreads workers, each running fn with its own
// worker index, and waits for all of them to finish. No shared mutable
// state crosses worker boundaries except transport output mutexes (spec
// §5); errgroup returns the first non-nil error once every worker has
// finished. The other workers are not cancelled.
func RunWorkers(numThreads int, fn WorkerFunc) error {
	var g errgroup.Group
	for w := 0; w < numThreads; w++ {
		worker := w
		g.Go(func() error {
			return fn(worker)
		})
	}
	return g.Wait()
}
