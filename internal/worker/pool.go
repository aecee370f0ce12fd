// Package worker consumes the check queue with a fixed number of goroutines.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/pagewatch/internal/logger"
	"github.com/MrSnakeDoc/pagewatch/internal/pipeline"
	"github.com/MrSnakeDoc/pagewatch/internal/queue"
)

const (
	DefaultConcurrency = 4
	defaultDequeueWait = 5 * time.Second
	errorBackoff       = time.Second
)

type Queue interface {
	Recover(ctx context.Context) (int, error)
	Dequeue(ctx context.Context, wait time.Duration) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
}

type Runner interface {
	Run(ctx context.Context, targetID int64) (pipeline.Result, error)
}

// Stats counts jobs since start.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

type Pool struct {
	queue   Queue
	runner  Runner
	workers int
	wait    time.Duration
	log     logger.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

func New(q Queue, runner Runner, workers int, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	return &Pool{
		queue:   q,
		runner:  runner,
		workers: workers,
		wait:    defaultDequeueWait,
		log:     log,
	}
}

// Start requeues jobs orphaned by a previous run, then launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	n, err := p.queue.Recover(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		p.log.Info("♻️ Requeued orphaned jobs", logger.Int("jobs", n))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func(id int) {
			defer p.wg.Done()
			p.loop(loopCtx, id)
		}(i + 1)
	}
	p.log.Info("👷 Workers started", logger.Int("workers", p.workers))
	return nil
}

// Stop stops dequeueing and waits for running jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		p.log.Info("✅ Workers stopped")
	})
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Active:    p.active.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With(logger.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.queue.Dequeue(ctx, p.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		p.handle(context.WithoutCancel(ctx), log, job)
	}
}

// handle runs one job to completion. Shutdown does not cancel it.
func (p *Pool) handle(ctx context.Context, log logger.Logger, job *queue.Job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	res, err := p.runner.Run(ctx, job.TargetID)
	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		log.Error("job failed",
			logger.String("job_id", job.ID),
			logger.Int64("target_id", job.TargetID),
			logger.Error(err))
	} else {
		log.Info("job done",
			logger.String("job_id", job.ID),
			logger.Int64("target_id", job.TargetID),
			logger.String("status", string(res.Status)),
			logger.Duration("took", time.Since(start)))
	}

	if err := p.queue.Ack(ctx, job); err != nil {
		log.Error("ack failed", logger.String("job_id", job.ID), logger.Error(err))
	}
}
