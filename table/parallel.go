package table

import (
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Narrow tables are gathered inline; the pool only pays off once there are
// enough columns to spread.
const parallelColumnThreshold = 8

var (
	poolOnce   sync.Once
	columnPool *ants.Pool
)

func sharedPool() *ants.Pool {
	poolOnce.Do(func() {
		p, err := ants.NewPool(runtime.NumCPU())
		if err == nil {
			columnPool = p
		}
	})
	return columnPool
}

// forEachColumn runs fn for every column index, fanning out over the shared
// worker pool for wide tables. fn must only write to its own slot.
func forEachColumn(n int, fn func(i int)) {
	var pool *ants.Pool
	if n >= parallelColumnThreshold {
		pool = sharedPool()
	}
	if pool == nil {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			fn(i)
		}); err != nil {
			wg.Done()
			fn(i)
		}
	}
	wg.Wait()
}
