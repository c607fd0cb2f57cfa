package domain

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// Payment is the 1:1 record of the external gateway interaction for an
// order. It is created at intent time and updated idempotently on
// (re-)verification.
type Payment struct {
	ID              int64
	OrderID         int64
	GatewayOrderRef string
	GatewayPayRef   string
	AmountCents     int64
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var ErrNotFound = errors.New("payment not found")
