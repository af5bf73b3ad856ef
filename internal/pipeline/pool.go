package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Submit errors
var (
	ErrQueueFull  = errors.New("job queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// JobRunner executes one job to a terminal state
type JobRunner interface {
	Run(ctx context.Context, job Job)
}

// Pool is a bounded worker pool consuming a queue of job descriptors, so
// concurrent recognizer processes stay capped no matter how fast uploads
// arrive
type Pool struct {
	runner  JobRunner
	queue   chan Job
	workers int
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a new Pool instance
func NewPool(runner JobRunner, workers int, queueDepth int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Pool{
		runner:  runner,
		queue:   make(chan Job, queueDepth),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. Jobs run until the queue is drained after
// Shutdown, or until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.workers),
		zap.Int("queue_depth", cap(p.queue)))
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("worker stopping on context cancellation", zap.Int("worker", id))
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.runner.Run(ctx, job)
		}
	}
}

// Submit enqueues a job without blocking the caller. A full queue is an
// error surfaced to the uploader rather than an unbounded backlog.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job enqueued",
			zap.String("project_id", job.ProjectID),
			zap.Int("pending", len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for in-flight jobs to reach a terminal
// state
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}
