package queue

import (
	"errors"
	"strconv"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is one unit of fulfillment work, keyed to a single order. The queue
// guarantees at most one worker holds an unexpired lock on it at a time.
type Job struct {
	ID          string
	Payload     []byte
	State       State
	Priority    int
	Attempts    int
	MaxAttempts int
	Stalls      int
	MaxStalls   int
	Progress    int
	Failure     string
	CreatedAt   time.Time

	lockOwner string
}

// JobStatus is the operator-facing view returned by Queue.Status.
type JobStatus struct {
	ID          string `json:"jobId"`
	State       State  `json:"state"`
	Progress    int    `json:"progress"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"maxAttempts"`
	Failure     string `json:"failureReason,omitempty"`
}

// Stats mirrors the broker's per-state counts.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

var ErrJobNotFound = errors.New("job not found")

// jobFromHash rebuilds a Job from the flat field/value array a Lua HGETALL
// returns.
func jobFromHash(reply []interface{}) (*Job, error) {
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, ok1 := reply[i].(string)
		v, ok2 := reply[i+1].(string)
		if !ok1 || !ok2 {
			return nil, errors.New("queue: malformed job hash reply")
		}
		fields[k] = v
	}
	if fields["id"] == "" {
		return nil, ErrJobNotFound
	}

	j := &Job{
		ID:          fields["id"],
		Payload:     []byte(fields["payload"]),
		State:       State(fields["status"]),
		Priority:    atoi(fields["priority"]),
		Attempts:    atoi(fields["attempts"]),
		MaxAttempts: atoi(fields["maxAttempts"]),
		Stalls:      atoi(fields["stalls"]),
		MaxStalls:   atoi(fields["maxStalls"]),
		Progress:    atoi(fields["progress"]),
		Failure:     fields["failure"],
		lockOwner:   fields["lockOwner"],
	}
	if ms := atoi64(fields["createdAt"]); ms > 0 {
		j.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return j, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
