package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrClosed is returned when submitting to a closed pool.
	ErrClosed = errors.New("pool: closed")

	// ErrQueueFull is returned when the task queue cannot accept more work.
	ErrQueueFull = errors.New("pool: queue full")

	// ErrTaskPanicked is returned when a task panics during execution.
	ErrTaskPanicked = errors.New("pool: task panicked")
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

// Config tunes the pool.
type Config struct {
	// Workers caps how many tasks run concurrently.
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize bounds how many tasks may wait for a worker.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// IdleTimeout is how long a surplus worker waits for work before
	// exiting. One worker always stays resident while the pool is open.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     16,
		QueueSize:   256,
		IdleTimeout: time.Minute,
	}
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Pool runs submitted tasks on a bounded set of worker goroutines.
type Pool struct {
	config Config

	// mu orders task submission against Close so nothing ever sends on
	// a closed queue.
	mu     sync.RWMutex
	closed bool
	queue  chan submission

	workers atomic.Int32
	active  atomic.Int32
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

type submission struct {
	task Task
	ctx  context.Context
	done chan error
}

// New creates a pool. Zero or negative config fields fall back to defaults.
func New(config Config) *Pool {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	return &Pool{
		config: config,
		queue:  make(chan submission, config.QueueSize),
	}
}

// Submit enqueues a task without waiting for it to run. It returns
// ErrQueueFull when the queue is saturated and ErrClosed after Close.
// The context is passed through to the task when it executes.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	return p.enqueue(submission{task: task, ctx: ctx})
}

// SubmitWait enqueues a task and blocks until it finishes, returning the
// task's error. It gives up when the context is cancelled, though a task
// already queued will still run.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	sub := submission{task: task, ctx: ctx, done: make(chan error, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.submitted.Add(1)
	select {
	case p.queue <- sub:
		p.mu.RUnlock()
		p.ensureWorker()
	case <-ctx.Done():
		p.mu.RUnlock()
		p.rejected.Add(1)
		return ctx.Err()
	}

	select {
	case err := <-sub.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) enqueue(sub submission) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	p.submitted.Add(1)

	select {
	case p.queue <- sub:
		p.ensureWorker()
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

func (p *Pool) ensureWorker() {
	for {
		current := p.workers.Load()
		if current >= int32(p.config.Workers) {
			return
		}
		// A worker is idle when more exist than tasks in flight; no need
		// to spawn another for work that will be picked up anyway.
		if current > 0 && int(current) > len(p.queue)+int(p.active.Load()) {
			return
		}
		if p.workers.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	idle := time.NewTimer(p.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case sub, ok := <-p.queue:
			if !ok {
				return
			}

			p.active.Add(1)
			err := p.run(sub)
			p.active.Add(-1)

			if sub.done != nil {
				sub.done <- err
			}
			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.config.IdleTimeout)

		case <-idle.C:
			// The last worker stays resident so queued work is never
			// stranded between a reap and the next submission.
			if p.workers.Load() > 1 {
				return
			}
			idle.Reset(p.config.IdleTimeout)
		}
	}
}

func (p *Pool) run(sub submission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrTaskPanicked
		}
	}()
	return sub.task(sub.ctx)
}

// Close stops accepting work, runs everything already queued, and waits
// for the workers to finish. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats reports current pool activity.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
