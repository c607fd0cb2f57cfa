package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redisOnce.Do(func() {
		ctx := context.Background()
		c, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			redisErr = err
			return
		}
		url, err := c.ConnectionString(ctx)
		if err != nil {
			redisErr = err
			return
		}
		redisAddr = strings.TrimPrefix(url, "redis://")
	})
	require.NoError(t, redisErr)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestQueue(t *testing.T, opts Options) *Queue {
	return New(slog.Default(), redisClient(t), fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano()), opts)
}

func TestEnqueueDedupe(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{})

	added, err := q.Enqueue(ctx, "order-1", []byte(`{"orderId":1}`), 1)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Enqueue(ctx, "order-1", []byte(`{"orderId":1}`), 1)
	require.NoError(t, err)
	assert.False(t, added, "second enqueue of the same job id must be ignored")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
}

func TestClaimComplete(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "order-2", []byte(`{"orderId":2}`), 1)
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "order-2", job.ID)
	assert.Equal(t, StateActive, job.State)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, []byte(`{"orderId":2}`), job.Payload)

	// queue is exhausted
	empty, err := q.Claim(ctx, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, q.Complete(ctx, job))

	status, err := q.Status(ctx, "order-2")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 100, status.Progress)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Active)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestClaimOrdering(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "bulk-1", nil, 2)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "bulk-2", nil, 2)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "urgent-1", nil, 1)
	require.NoError(t, err)

	var got []string
	for i := 0; i < 3; i++ {
		job, err := q.Claim(ctx, "worker-a")
		require.NoError(t, err)
		require.NotNil(t, job)
		got = append(got, job.ID)
		require.NoError(t, q.Complete(ctx, job))
	}
	// lower priority number first, FIFO inside a class
	assert.Equal(t, []string{"urgent-1", "bulk-1", "bulk-2"}, got)
}

func TestFailRetriesThenExhausts(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{MaxAttempts: 2, BackoffBase: 100 * time.Millisecond})

	_, err := q.Enqueue(ctx, "order-3", nil, 1)
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, job)

	state, err := q.Fail(ctx, job, "capture payment: timeout", true)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, state)

	// backoff has not elapsed yet
	early, err := q.Claim(ctx, "worker-a")
	require.NoError(t, err)
	assert.Nil(t, early)

	time.Sleep(150 * time.Millisecond)

	job, err = q.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "capture payment: timeout", job.Failure)

	// attempts exhausted: even a retryable failure is final now
	state, err = q.Fail(ctx, job, "capture payment: timeout", true)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)

	status, err := q.Status(ctx, "order-3")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "capture payment: timeout", status.Failure)
}

func TestFailPermanent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{MaxAttempts: 3})

	_, err := q.Enqueue(ctx, "order-4", []byte(`not json`), 1)
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, job)

	state, err := q.Fail(ctx, job, "decode job payload: invalid", false)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state, "non-retryable failure must not consume remaining attempts")
}

func TestStalledReclaim(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{LockDuration: 50 * time.Millisecond, MaxStalledCount: 1})

	_, err := q.Enqueue(ctx, "order-5", nil, 1)
	require.NoError(t, err)

	// first stall: lock expires without a heartbeat, job goes back to waiting
	job, err := q.Claim(ctx, "worker-dead")
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(80 * time.Millisecond)
	requeued, failed, err := q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)
	assert.Equal(t, int64(0), failed)

	// the dead worker's late ack must be ignored
	require.NoError(t, q.Complete(ctx, job))
	status, err := q.Status(ctx, "order-5")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, status.State)

	// second stall exceeds MaxStalledCount: permanent failure
	job, err = q.Claim(ctx, "worker-dead-2")
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(80 * time.Millisecond)
	requeued, failed, err = q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), requeued)
	assert.Equal(t, int64(1), failed)

	status, err = q.Status(ctx, "order-5")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "job stalled more than maxStalledCount times", status.Failure)
}

func TestHeartbeatKeepsLock(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{LockDuration: 50 * time.Millisecond})

	_, err := q.Enqueue(ctx, "order-6", nil, 1)
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(30 * time.Millisecond)
	ok, err := q.ExtendLock(ctx, job)
	require.NoError(t, err)
	assert.True(t, ok)

	// past the original expiry but inside the extension
	time.Sleep(30 * time.Millisecond)
	requeued, failed, err := q.ReclaimStalled(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, failed)

	require.NoError(t, q.Complete(ctx, job))
}

func TestStatusNotFound(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{})

	_, err := q.Status(ctx, "order-999")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSetProgress(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{})

	_, err := q.Enqueue(ctx, "order-7", nil, 1)
	require.NoError(t, err)
	require.NoError(t, q.SetProgress(ctx, "order-7", 60))

	status, err := q.Status(ctx, "order-7")
	require.NoError(t, err)
	assert.Equal(t, 60, status.Progress)
}
