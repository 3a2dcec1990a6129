package scheduler

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/queue"
)

// handlerFunc runs one leased job. An error causes the job to be
// retried or dead-lettered by queue.Fail according to errs.Retryable.
type handlerFunc func(ctx context.Context, job *queue.Job) error

// kindWorker leases jobs of one kind and dispatches them into a
// bounded conc/pool, the idiomatic replacement for the teacher's ad hoc
// sync.WaitGroup fan-out (spec.md §8's "bounded worker pools per job
// kind"). The pool's own backpressure (Go blocks once MaxGoroutines
// in-flight tasks are running) is what enforces the concurrency cap;
// the dispatch loop just keeps feeding it.
type kindWorker struct {
	kind     catalog.JobKind
	handler  handlerFunc
	q        *queue.Queue
	pool     *pool.Pool
	workerID string
	lease    time.Duration
	poll     time.Duration
}

func newKindWorker(kind catalog.JobKind, handler handlerFunc, q *queue.Queue, concurrency int, cfg Config) *kindWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &kindWorker{
		kind:     kind,
		handler:  handler,
		q:        q,
		pool:     pool.New().WithMaxGoroutines(concurrency),
		workerID: cfg.WorkerID,
		lease:    cfg.LeaseDuration,
		poll:     cfg.PollInterval,
	}
}

// run dispatches leased jobs until ctx is cancelled, then waits for any
// in-flight handler to finish before returning (graceful shutdown:
// stop leasing, let the grace period drain, release nothing since
// completed/failed jobs clear their own lease).
func (w *kindWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.pool.Wait()
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain leases and dispatches jobs until none remain ready, so a single
// tick can burn through a backlog instead of leasing one job per
// PollInterval.
func (w *kindWorker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.q.Lease(ctx, []catalog.JobKind{w.kind}, w.workerID, w.lease)
		if err != nil || job == nil {
			return
		}
		w.pool.Go(func() {
			w.execute(ctx, job)
		})
	}
}

func (w *kindWorker) execute(ctx context.Context, job *queue.Job) {
	err := w.handler(ctx, job)
	// Record the outcome even when shutdown has already cancelled ctx.
	done := context.WithoutCancel(ctx)
	if err != nil {
		_ = w.q.Fail(done, job.ID, err)
		return
	}
	_ = w.q.Complete(done, job.ID)
}
