package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"finxtract/internal/common"
)

// Spawner starts n workers running work. The default spawns goroutines; a
// failing spawner is how tests (and a genuinely broken substrate) force the
// degraded transition.
type Spawner func(n int, work func(workerID int)) error

func goSpawner(n int, work func(workerID int)) error {
	for i := 0; i < n; i++ {
		go work(i + 1)
	}
	return nil
}

// poolSizeFor bounds worker count by page count: a small constant for short
// documents, a larger one beyond, never one worker per page.
func poolSizeFor(pageCount, configured int) int {
	size := 4
	if pageCount > 20 {
		size = 8
	}
	if configured > 0 && size > configured {
		size = configured
	}
	if size > pageCount {
		size = pageCount
	}
	if size < 1 {
		size = 1
	}
	return size
}

// pool runs fn over indexes 0..count-1 with bounded workers, adapted from
// the document queue's worker loop. Results are whatever fn records keyed by
// its index argument; the pool itself carries no results, so completion
// order cannot leak into output.
type pool struct {
	spawner Spawner
	logger  *slog.Logger
}

func newPool(spawner Spawner, logger *slog.Logger) *pool {
	if spawner == nil {
		spawner = goSpawner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &pool{spawner: spawner, logger: logger}
}

// run dispatches indexes to workers. A spawn failure is a pool-level fault:
// it returns common.ErrPoolFault with no index processed, and the caller is
// expected to fall back to strictly sequential execution. Dispatch stops
// early when ctx is done or stop returns true; undispatched indexes are left
// for the caller's fallback/skip accounting.
func (p *pool) run(ctx context.Context, workers, count int, stop func() bool, fn func(ctx context.Context, i int)) error {
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)

	work := func(workerID int) {
		defer wg.Done()
		p.logger.Debug("pool.worker.started", "worker_id", workerID)
		for i := range jobs {
			fn(ctx, i)
		}
		p.logger.Debug("pool.worker.stopped", "worker_id", workerID)
	}

	if err := p.spawner(workers, work); err != nil {
		// Nothing consumes jobs; close it and report the fault.
		close(jobs)
		p.logger.Error("pool.spawn_failed", "workers", workers, "error", err)
		return common.ErrPoolFault
	}

dispatch:
	for i := 0; i < count; i++ {
		if stop != nil && stop() {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return nil
}
