package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configure one named queue. Zero fields fall back to the defaults
// below.
type Options struct {
	// MaxAttempts bounds handler retries; past it the job is failed for
	// operator inspection.
	MaxAttempts int
	// BackoffBase is the first retry delay; each further retry doubles it.
	BackoffBase time.Duration
	// LockDuration is how long a claim stays valid without a heartbeat
	// before the job counts as stalled.
	LockDuration time.Duration
	// MaxStalledCount bounds how often a stalled job is handed to another
	// worker before it is failed permanently.
	MaxStalledCount int

	// Terminal-job retention, capping broker memory growth.
	KeepCompletedAge   time.Duration
	KeepCompletedCount int
	KeepFailedAge      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.LockDuration <= 0 {
		o.LockDuration = 30 * time.Second
	}
	if o.MaxStalledCount <= 0 {
		o.MaxStalledCount = 3
	}
	if o.KeepCompletedAge <= 0 {
		o.KeepCompletedAge = 24 * time.Hour
	}
	if o.KeepCompletedCount <= 0 {
		o.KeepCompletedCount = 1000
	}
	if o.KeepFailedAge <= 0 {
		o.KeepFailedAge = 7 * 24 * time.Hour
	}
	return o
}

// Queue is a durable, prioritized job buffer on Redis. It decouples order
// intake from fulfillment throughput and guarantees at most one live claim
// per job id.
type Queue struct {
	log  *slog.Logger
	rdb  *redis.Client
	name string
	opts Options
}

func New(log *slog.Logger, rdb *redis.Client, name string, opts Options) *Queue {
	return &Queue{
		log:  log,
		rdb:  rdb,
		name: name,
		opts: opts.withDefaults(),
	}
}

func (q *Queue) key(part string) string { return "queue:" + q.name + ":" + part }

func (q *Queue) jobPrefix() string { return q.key("job:") }

func (q *Queue) stateKeys() []string {
	return []string{
		q.key("waiting"),
		q.key("active"),
		q.key("delayed"),
		q.key("completed"),
		q.key("failed"),
		q.key("seq"),
	}
}

// Enqueue adds a job unless one with the same id already exists; the job id
// is the idempotency key, so double submission of order-{id} is harmless.
// Lower priority numbers are served first.
func (q *Queue) Enqueue(ctx context.Context, jobID string, payload []byte, priority int) (bool, error) {
	if priority <= 0 {
		priority = 1
	}
	n, err := enqueueScript.Run(ctx, q.rdb, q.stateKeys(),
		q.jobPrefix(), jobID, payload, priority,
		q.opts.MaxAttempts, q.opts.MaxStalledCount, time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("queue enqueue %s: %w", jobID, err)
	}
	if n == 0 {
		q.log.Debug("duplicate enqueue ignored", "job_id", jobID)
		return false, nil
	}
	return true, nil
}

// Claim pops the best waiting job (promoting any due retries first) and
// locks it for workerID until now+LockDuration. Returns (nil, nil) when the
// queue is empty.
func (q *Queue) Claim(ctx context.Context, workerID string) (*Job, error) {
	now := time.Now()
	res, err := claimScript.Run(ctx, q.rdb, q.stateKeys(),
		q.jobPrefix(), workerID, now.UnixMilli(), now.Add(q.opts.LockDuration).UnixMilli(),
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue claim: %w", err)
	}
	reply, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("queue claim: unexpected reply %T", res)
	}
	return jobFromHash(reply)
}

// Complete acks a job. A stale owner (lock was reclaimed meanwhile) is a
// silent no-op; the replacement worker owns the job now.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := time.Now().UnixMilli()
	n, err := completeScript.Run(ctx, q.rdb, q.stateKeys(),
		q.jobPrefix(), job.ID, job.lockOwner, now,
		q.opts.KeepCompletedAge.Milliseconds(), q.opts.KeepCompletedCount,
	).Int()
	if err != nil {
		return fmt.Errorf("queue complete %s: %w", job.ID, err)
	}
	if n == 0 {
		q.log.Warn("complete ignored, lock lost", "job_id", job.ID)
	}
	return nil
}

// Fail records a failed attempt. Retryable failures with attempts remaining
// are re-scheduled after an exponential backoff; the rest land in the failed
// set, retained for inspection.
func (q *Queue) Fail(ctx context.Context, job *Job, reason string, retryable bool) (State, error) {
	now := time.Now()
	readyAt := now.Add(q.backoff(job.Attempts))
	retry := "0"
	if retryable {
		retry = "1"
	}
	res, err := failScript.Run(ctx, q.rdb, q.stateKeys(),
		q.jobPrefix(), job.ID, job.lockOwner, now.UnixMilli(),
		reason, retry, readyAt.UnixMilli(), q.opts.KeepFailedAge.Milliseconds(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("queue fail %s: %w", job.ID, err)
	}
	switch res {
	case "delayed":
		return StateDelayed, nil
	case "failed":
		return StateFailed, nil
	default:
		q.log.Warn("fail ignored, lock lost", "job_id", job.ID)
		return StateActive, nil
	}
}

// ExtendLock renews the caller's claim; it reports false when the lock was
// already reclaimed.
func (q *Queue) ExtendLock(ctx context.Context, job *Job) (bool, error) {
	expiry := time.Now().Add(q.opts.LockDuration).UnixMilli()
	n, err := extendLockScript.Run(ctx, q.rdb, q.stateKeys(),
		q.jobPrefix(), job.ID, job.lockOwner, expiry,
	).Int()
	if err != nil {
		return false, fmt.Errorf("queue extend lock %s: %w", job.ID, err)
	}
	return n == 1, nil
}

// SetProgress stores a 0-100 progress hint for status polling.
func (q *Queue) SetProgress(ctx context.Context, jobID string, pct int) error {
	return q.rdb.HSet(ctx, q.jobPrefix()+jobID, "progress", pct).Err()
}

// ReclaimStalled releases expired claims back to the waiting set and
// permanently fails jobs that stalled too often.
func (q *Queue) ReclaimStalled(ctx context.Context) (requeued, failed int64, err error) {
	res, err := reclaimScript.Run(ctx, q.rdb, q.stateKeys(),
		q.jobPrefix(), time.Now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("queue reclaim stalled: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("queue reclaim stalled: unexpected reply length %d", len(res))
	}
	return res[0], res[1], nil
}

// Status reports a single job's state for operator polling.
func (q *Queue) Status(ctx context.Context, jobID string) (JobStatus, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobPrefix()+jobID).Result()
	if err != nil {
		return JobStatus{}, fmt.Errorf("queue status %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return JobStatus{}, ErrJobNotFound
	}
	return JobStatus{
		ID:          jobID,
		State:       State(fields["status"]),
		Progress:    atoi(fields["progress"]),
		Attempts:    atoi(fields["attempts"]),
		MaxAttempts: atoi(fields["maxAttempts"]),
		Failure:     fields["failure"],
	}, nil
}

// Stats returns the per-state job counts.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.ZCard(ctx, q.key("waiting"))
	active := pipe.ZCard(ctx, q.key("active"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// backoff doubles per prior attempt: base, 2*base, 4*base, ...
func (q *Queue) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return q.opts.BackoffBase << (attempts - 1)
}

// LockDuration exposes the configured claim lifetime for heartbeat pacing.
func (q *Queue) LockDuration() time.Duration { return q.opts.LockDuration }
