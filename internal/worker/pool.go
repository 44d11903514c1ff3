package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sjoeboo/hangar-bridge/internal/logging"
	"github.com/sjoeboo/hangar-bridge/internal/metrics"
)

var (
	// ErrQueueFull means every worker is busy and the queue has no free slot
	ErrQueueFull = errors.New("worker queue full")

	// ErrClosed means the pool no longer accepts jobs
	ErrClosed = errors.New("worker pool closed")
)

// Job is a unit of fire-and-forget work
type Job struct {
	// Name identifies the job in logs
	Name string
	Run  func(ctx context.Context)
}

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
// Submitting never blocks; a full queue rejects the job.
type Pool struct {
	jobs    chan Job
	group   *errgroup.Group
	ctx     context.Context
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// New starts workers that run jobs with a context derived from ctx that is
// not cancelled with it: in-flight jobs finish on their own bounds after shutdown.
func New(ctx context.Context, workers, queueSize int, log *slog.Logger, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logging.Discard()
	}
	p := &Pool{
		jobs:    make(chan Job, queueSize),
		group:   new(errgroup.Group),
		ctx:     context.WithoutCancel(ctx),
		log:     log,
		metrics: m,
	}
	for i := 0; i < workers; i++ {
		id := i
		p.group.Go(func() error {
			p.work(id)
			return nil
		})
	}
	log.Debug("worker_pool_started", slog.Int("workers", workers), slog.Int("queue_size", queueSize))
	return p
}

func (p *Pool) work(id int) {
	for job := range p.jobs {
		p.metrics.SetQueueDepth(len(p.jobs))
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker_job_panic",
				slog.Int("worker", id),
				slog.String("job", job.Name),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	job.Run(p.ctx)
}

// TrySubmit queues a job without blocking
func (p *Pool) TrySubmit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("submit %q: nil job", job.Name)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		p.metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
		p.log.Warn("worker_queue_full", slog.String("job", job.Name))
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued and running jobs to finish
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	return p.group.Wait()
}
