package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aksh-ita757/SMART-MART/pkg/metrics"
)

// Handler processes one claimed job. A nil return completes the job; an
// error wrapped with Permanent fails it immediately; any other error
// schedules a backoff retry.
type Handler func(ctx context.Context, job *Job) error

type WorkerOptions struct {
	// Concurrency is the number of handlers this process runs in parallel.
	Concurrency int
	// PollInterval paces the claim loop when the queue is empty.
	PollInterval time.Duration
	// JobTimeout bounds a single handler invocation.
	JobTimeout time.Duration
	// StalledInterval paces the stalled-job sweep.
	StalledInterval time.Duration
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 60 * time.Second
	}
	if o.StalledInterval <= 0 {
		o.StalledInterval = 30 * time.Second
	}
	return o
}

// Worker runs a pool of concurrent handlers against one queue. Claimed jobs
// are heartbeated for as long as the handler runs, so only a genuinely dead
// worker lets its jobs stall.
type Worker struct {
	log     *slog.Logger
	id      string
	q       *Queue
	handler Handler
	opts    WorkerOptions
	met     *metrics.WorkerMetrics
}

func NewWorker(log *slog.Logger, q *Queue, handler Handler, met *metrics.WorkerMetrics, opts WorkerOptions) *Worker {
	id := "worker-" + uuid.NewString()
	return &Worker{
		log:     log.With("worker_id", id),
		id:      id,
		q:       q,
		handler: handler,
		opts:    opts.withDefaults(),
		met:     met,
	}
}

// Run blocks until ctx is cancelled, then drains: claim loops stop picking
// up new work but in-flight handlers finish within their JobTimeout.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting", "concurrency", w.opts.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.claimLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.stalledLoop(ctx)
	}()

	wg.Wait()
	w.log.Info("worker stopped")
	return nil
}

func (w *Worker) claimLoop(ctx context.Context) {
	t := time.NewTicker(w.opts.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		for {
			job, err := w.q.Claim(ctx, w.id)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Error("claim failed", "err", err)
				break
			}
			if job == nil {
				break
			}
			w.process(ctx, job)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	// Detached from the run context so a graceful shutdown lets the
	// in-flight job finish instead of abandoning it mid-reservation.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.JobTimeout)
	defer cancel()

	stopBeat := w.heartbeat(jobCtx, job)
	defer stopBeat()

	start := time.Now()
	err := w.handler(jobCtx, job)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if cerr := w.q.Complete(jobCtx, job); cerr != nil {
			w.log.Error("complete failed", "job_id", job.ID, "err", cerr)
		}
		w.observe("completed", elapsed)
		w.log.Info("job completed", "job_id", job.ID, "attempt", job.Attempts, "duration_ms", elapsed.Milliseconds())
	case IsPermanent(err):
		if _, ferr := w.q.Fail(jobCtx, job, err.Error(), false); ferr != nil {
			w.log.Error("fail failed", "job_id", job.ID, "err", ferr)
		}
		w.observe("failed", elapsed)
		w.log.Warn("job failed permanently", "job_id", job.ID, "attempt", job.Attempts, "err", err)
	default:
		state, ferr := w.q.Fail(jobCtx, job, err.Error(), true)
		if ferr != nil {
			w.log.Error("fail failed", "job_id", job.ID, "err", ferr)
		}
		w.observe("retried", elapsed)
		w.log.Warn("job attempt failed", "job_id", job.ID, "attempt", job.Attempts, "next_state", string(state), "err", err)
	}
}

// heartbeat renews the job lock at a third of its lifetime until the
// returned stop function is called.
func (w *Worker) heartbeat(ctx context.Context, job *Job) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		t := time.NewTicker(w.q.LockDuration() / 3)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				ok, err := w.q.ExtendLock(ctx, job)
				if err != nil {
					w.log.Error("lock extend failed", "job_id", job.ID, "err", err)
					continue
				}
				if !ok {
					w.log.Warn("lock lost to reclaim", "job_id", job.ID)
					return
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (w *Worker) stalledLoop(ctx context.Context) {
	t := time.NewTicker(w.opts.StalledInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			requeued, failed, err := w.q.ReclaimStalled(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error("stalled reclaim failed", "err", err)
				}
				continue
			}
			if requeued > 0 || failed > 0 {
				if w.met != nil {
					w.met.JobsStalled.Add(float64(requeued + failed))
				}
				w.log.Warn("stalled jobs reclaimed", "requeued", requeued, "failed", failed)
			}
		}
	}
}

func (w *Worker) observe(outcome string, d time.Duration) {
	if w.met == nil {
		return
	}
	w.met.JobsProcessed.WithLabelValues(outcome).Inc()
	w.met.DurationMS.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}
