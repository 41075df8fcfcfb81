package trainer

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunks splits [0, n) into at most workers contiguous ranges, runs fn on
// each range concurrently and returns the results in range order. Callers
// reduce the results serially, so shared accumulators are never touched
// from a worker.
func chunks[T any](workers, n int, fn func(lo, hi int) T) []T {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	size := (n + workers - 1) / workers
	out := make([]T, (n+size-1)/size)
	if len(out) == 1 {
		out[0] = fn(0, n)
		return out
	}

	var g errgroup.Group
	for i := range out {
		i := i
		lo, hi := i*size, (i+1)*size
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			out[i] = fn(lo, hi)
			return nil
		})
	}
	// fn cannot fail; Wait only joins the workers.
	_ = g.Wait()
	return out
}
