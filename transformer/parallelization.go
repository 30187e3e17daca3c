package transformer

import (
	"sync"

	"github.com/paulchinnam/GPaulT/optimizations"
)

// forEachRow runs fn for rows [0, n) striped over at most workers goroutines.
// Row i always lands on worker i%workers, so results do not depend on scheduling.
func forEachRow(n, workers int, fn func(row, worker int)) {
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i, 0)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += workers {
				fn(i, w)
			}
		}(w)
	}
	wg.Wait()
}

// gradSets returns one GradSet per worker. A single worker writes straight
// into the parameters; more workers get private buffers to Flush.
func gradSets(workers int) []*optimizations.GradSet {
	if workers <= 1 {
		return []*optimizations.GradSet{optimizations.DirectGrads()}
	}
	out := make([]*optimizations.GradSet, workers)
	for i := range out {
		out[i] = optimizations.PrivateGrads()
	}
	return out
}
