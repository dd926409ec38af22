// Package jobs schedules the recurring background work: node polling,
// aggregation, statistics, rendering and retention.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/DE-IBH/b3lb/internal/logging"
)

// Runner owns the periodic job goroutines. Each named job is a
// singleton: a tick is skipped while the previous run is still going.
type Runner struct {
	logger  logging.Logger
	wg      sync.WaitGroup
	stop    chan struct{}
	cancel  context.CancelFunc
	ctx     context.Context
	mu      sync.Mutex
	running map[string]bool
}

func NewRunner(logger logging.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger:  logger,
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]bool),
	}
}

// Every schedules fn at the given interval, starting one interval from
// now.
func (r *Runner) Every(interval time.Duration, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.run(name, fn)
			}
		}
	}()
}

func (r *Runner) run(name string, fn func(ctx context.Context)) {
	if !r.tryLock(name) {
		r.logger.WithField("job", name).Debug("Previous run still active, skipping tick")
		return
	}
	defer r.unlock(name)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("job", name).WithField("panic", rec).
				Error("Job panicked")
		}
	}()
	fn(r.ctx)
}

// TryRun executes fn immediately under the job's singleton lock;
// it reports false when the job is already running.
func (r *Runner) TryRun(name string, fn func(ctx context.Context)) bool {
	if !r.tryLock(name) {
		return false
	}
	defer r.unlock(name)
	fn(r.ctx)
	return true
}

func (r *Runner) tryLock(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) unlock(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

// Stop cancels running jobs and waits for every goroutine to finish.
func (r *Runner) Stop() {
	close(r.stop)
	r.cancel()
	r.wg.Wait()
}
