// Package worker runs queued render jobs on a fixed set of goroutines.
package worker

import (
	"context"
	"sync"
	"time"

	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
)

const ackTimeout = 5 * time.Second

type Pool struct {
	queue      ports.JobQueue
	proc       JobProcessor
	workers    int
	jobTimeout time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc

	wg        sync.WaitGroup
	stopPop   context.CancelFunc
	stopJobs  context.CancelFunc
	jobRoot   context.Context
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewPool(d Deps) *Pool {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	workers := d.Concurrency
	if workers <= 0 {
		workers = 2
	}
	return &Pool{
		queue:      d.Queue,
		proc:       d.Processor,
		workers:    workers,
		jobTimeout: d.JobTimeout,
		log:        log.WithComponent("worker"),
		running:    make(map[string]context.CancelFunc),
	}
}

// Start launches the workers. ctx is the parent of every job context.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		popCtx, stopPop := context.WithCancel(ctx)
		jobRoot, stopJobs := context.WithCancel(context.WithoutCancel(ctx))
		p.stopPop, p.stopJobs, p.jobRoot = stopPop, stopJobs, jobRoot

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.loop(popCtx, i)
		}
		p.log.Info("worker pool started", "workers", p.workers, "job_timeout", p.jobTimeout.String())
	})
}

func (p *Pool) loop(ctx context.Context, n int) {
	defer p.wg.Done()
	log := p.log.WithWorker(n)

	for {
		jobID, err := p.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("worker stopping")
				return
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if jobID == "" {
			continue
		}
		p.run(jobID)
	}
}

func (p *Pool) run(jobID string) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(p.jobRoot, p.jobTimeout)
	} else {
		ctx, cancel = context.WithCancel(p.jobRoot)
	}
	ctx = logger.ContextWithJobID(ctx, jobID)

	p.mu.Lock()
	p.running[jobID] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.running, jobID)
		p.mu.Unlock()
		cancel()
	}()

	jobLog := p.log.WithJobID(jobID)
	jobLog.Info("processing job")
	start := time.Now()

	defer p.ack(jobID)

	if err := p.proc.ProcessJob(ctx, jobID); err != nil {
		jobLog.Error("job failed",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	jobLog.Info("job finished", "duration_ms", time.Since(start).Milliseconds())
}

// ack releases jobID from the queue once its outcome is recorded, even
// when the pool is shutting down.
func (p *Pool) ack(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	if err := p.queue.Ack(ctx, jobID); err != nil {
		p.log.WithJobID(jobID).Warn("queue ack failed", "error", err.Error())
	}
}

// Cancel kills the render of jobID if it is running on this pool.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.running[jobID]
	p.mu.Unlock()
	if ok {
		cancel()
		p.log.WithJobID(jobID).Info("job canceled")
	}
	return ok
}

// Running returns the number of jobs currently rendering.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Stop stops taking jobs and waits for running ones. When ctx expires
// first, running jobs are canceled and Stop waits for them to unwind.
func (p *Pool) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		if p.stopPop == nil {
			return
		}
		p.stopPop()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			p.log.Warn("shutdown deadline reached, canceling running jobs", "running", p.Running())
			p.stopJobs()
			<-done
			err = ctx.Err()
		}
		p.stopJobs()
		p.log.Info("worker pool stopped")
	})
	return err
}
