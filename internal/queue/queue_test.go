package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueue(opts Options) *Queue {
	return New(slog.Default(), nil, "order-processing", opts)
}

func TestKeyBuilding(t *testing.T) {
	q := testQueue(Options{})

	assert.Equal(t, "queue:order-processing:waiting", q.key("waiting"))
	assert.Equal(t, "queue:order-processing:job:", q.jobPrefix())
	assert.Equal(t, []string{
		"queue:order-processing:waiting",
		"queue:order-processing:active",
		"queue:order-processing:delayed",
		"queue:order-processing:completed",
		"queue:order-processing:failed",
		"queue:order-processing:seq",
	}, q.stateKeys())
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()

	assert.Equal(t, 3, o.MaxAttempts)
	assert.Equal(t, 2*time.Second, o.BackoffBase)
	assert.Equal(t, 30*time.Second, o.LockDuration)
	assert.Equal(t, 3, o.MaxStalledCount)
	assert.Equal(t, 24*time.Hour, o.KeepCompletedAge)
	assert.Equal(t, 1000, o.KeepCompletedCount)
	assert.Equal(t, 7*24*time.Hour, o.KeepFailedAge)

	// explicit values survive
	o = Options{MaxAttempts: 5, BackoffBase: time.Second}.withDefaults()
	assert.Equal(t, 5, o.MaxAttempts)
	assert.Equal(t, time.Second, o.BackoffBase)
}

func TestBackoffSchedule(t *testing.T) {
	q := testQueue(Options{BackoffBase: 2 * time.Second})

	assert.Equal(t, 2*time.Second, q.backoff(1))
	assert.Equal(t, 4*time.Second, q.backoff(2))
	assert.Equal(t, 8*time.Second, q.backoff(3))
	// attempts below one clamp to the base delay
	assert.Equal(t, 2*time.Second, q.backoff(0))
}

func TestPermanentClassification(t *testing.T) {
	base := errors.New("boom")

	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.True(t, IsPermanent(fmt.Errorf("handle job: %w", Permanent(base))))
	assert.Nil(t, Permanent(nil))

	// wrapping preserves the original error chain
	wrapped := Permanent(fmt.Errorf("decode: %w", base))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, "decode: boom", wrapped.Error())
}

func TestJobFromHash(t *testing.T) {
	reply := []interface{}{
		"id", "order-12",
		"payload", `{"orderId":12}`,
		"status", "active",
		"priority", "1",
		"attempts", "2",
		"maxAttempts", "3",
		"stalls", "1",
		"maxStalls", "3",
		"progress", "40",
		"failure", "capture payment: timeout",
		"lockOwner", "worker-abc",
		"createdAt", "1700000000000",
	}

	j, err := jobFromHash(reply)
	require.NoError(t, err)

	assert.Equal(t, "order-12", j.ID)
	assert.Equal(t, []byte(`{"orderId":12}`), j.Payload)
	assert.Equal(t, StateActive, j.State)
	assert.Equal(t, 1, j.Priority)
	assert.Equal(t, 2, j.Attempts)
	assert.Equal(t, 3, j.MaxAttempts)
	assert.Equal(t, 1, j.Stalls)
	assert.Equal(t, 40, j.Progress)
	assert.Equal(t, "capture payment: timeout", j.Failure)
	assert.Equal(t, "worker-abc", j.lockOwner)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), j.CreatedAt)
}

func TestJobFromHashMissingID(t *testing.T) {
	_, err := jobFromHash([]interface{}{"status", "active"})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobFromHashMalformed(t *testing.T) {
	_, err := jobFromHash([]interface{}{"id", 42})
	assert.Error(t, err)
}
