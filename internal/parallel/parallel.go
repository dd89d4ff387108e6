// Package parallel provides fork-join helpers for the per-iteration
// parallel regions of the optimizer.
package parallel

import (
	"runtime"
	"sync"
)

// NumWorkers returns the default worker count for parallel regions.
func NumWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// For executes fn for every index in [start, end) using n workers and
// returns once all workers have joined. Indices are split into n
// contiguous chunks, so for a fixed n the assignment of indices to
// workers is deterministic.
func For(start, end, n int, fn func(i int)) {
	ForWorker(start, end, n, func(_, i int) { fn(i) })
}

// ForWorker is like For but also passes the index of the worker owning
// the chunk, so callers can keep per-worker accumulators and reduce
// them in a fixed order after the join.
func ForWorker(start, end, n int, fn func(worker, i int)) {
	if n <= 1 {
		for i := start; i < end; i++ {
			fn(0, i)
		}
		return
	}

	total := end - start
	if total <= 0 {
		return
	}

	chunk := (total + n - 1) / n

	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		lo := start + w*chunk
		hi := lo + chunk
		if hi > end {
			hi = end
		}
		if lo >= hi {
			break
		}

		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(w, i)
			}
		}(w, lo, hi)
	}
	wg.Wait()
}

// Do runs the given functions concurrently and waits for all of them.
func Do(fns ...func()) {
	if len(fns) == 1 {
		fns[0]()
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		go func(f func()) {
			defer wg.Done()
			f()
		}(fn)
	}
	wg.Wait()
}
