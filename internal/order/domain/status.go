package domain

import "errors"

// ErrStatusConflict is returned by compare-and-set status updates when the
// order left the expected status in the meantime.
var ErrStatusConflict = errors.New("order status conflict")

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// validNext is the full lifecycle graph. Cancellation is reachable only
// before processing starts; failed is reachable once payment is confirmed.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusPaid: true, StatusCancelled: true},
	StatusPaid:       {StatusProcessing: true, StatusCancelled: true, StatusFailed: true},
	StatusProcessing: {StatusShipped: true, StatusFailed: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
	StatusFailed:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

// TerminalForProcessing matches the worker's idempotent re-processing guard:
// a reclaimed or re-delivered job must not touch an order in these states.
func (s Status) TerminalForProcessing() bool {
	switch s {
	case StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}
