// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Task is one detached unit of work, typically a pipeline run.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines. Submit never
// blocks: a full queue is reported to the caller.
type Pool struct {
	wg       sync.WaitGroup
	jobs     chan Task
	quit     chan struct{}
	stopOnce sync.Once
	n        int
	log      *zerolog.Logger
}

func NewPool(workers, queue int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Task, queue), quit: make(chan struct{}), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.n).Int("queue", cap(p.jobs)).Msg("starting worker pool")
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	metrics.SetQueueDepth(len(p.jobs))
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().Int("worker", id).Interface("panic", rec).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Int("worker", id).Err(err).Msg("task error")
	}
}

// Stop signals workers to exit and waits for running tasks. Queued tasks
// that have not started are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case <-p.quit:
		return errors.New("worker pool stopped")
	default:
	}
	select {
	case p.jobs <- task:
		metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
		return domain.ErrQueueFull
	}
}
