package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/internal/engine"
	"github.com/Priya8975/stripe-webhook-listener/internal/metrics"
)

// JobProcessor runs one attempt of a job. When retry is true the pool
// resubmits the job after delay with Attempt incremented.
type JobProcessor interface {
	Process(ctx context.Context, job engine.Job) (delay time.Duration, retry bool)
}

// Pool manages a fixed number of worker goroutines that run event handlers.
type Pool struct {
	numWorkers int
	jobs       chan engine.Job
	processor  JobProcessor
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a worker pool with the given number of workers and queue size.
func NewPool(numWorkers, queueSize int, processor JobProcessor, logger *slog.Logger) *Pool {
	if queueSize < numWorkers {
		queueSize = numWorkers * 2
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.Job, queueSize),
		processor:  processor,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed by Stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers, "queue_size", cap(p.jobs))
}

// TrySubmit queues a job without blocking. It returns false when the queue
// is full or the pool is stopping.
func (p *Pool) TrySubmit(job engine.Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	select {
	case p.jobs <- job:
		p.reportUtilization()
		return true
	default:
		return false
	}
}

// Stop refuses new jobs, lets workers drain what is queued and waits for them.
// Pending retries are abandoned; their events stay in the received state.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) QueueLen() int { return len(p.jobs) }
func (p *Pool) QueueCap() int { return cap(p.jobs) }

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Pool) reportUtilization() {
	metrics.QueueUtilization.Set(float64(len(p.jobs)) / float64(cap(p.jobs)))
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.reportUtilization()

		delay, retry := p.processor.Process(ctx, job)
		if retry {
			job.Attempt++
			go p.retryAfter(ctx, job, delay)
		}
	}
}

// retryAfter resubmits job once delay has passed, backing off again while
// the queue is full.
func (p *Pool) retryAfter(ctx context.Context, job engine.Job, delay time.Duration) {
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if p.TrySubmit(job) {
			return
		}
		if p.isClosed() {
			p.logger.Warn("retry abandoned, pool stopped",
				"stripe_event_id", job.StripeEventID(),
				"attempt", job.Attempt,
			)
			return
		}
		p.logger.Warn("queue full, delaying retry", "stripe_event_id", job.StripeEventID())
	}
}
