package domain

import (
	"errors"
	"fmt"
	"time"
)

type Order struct {
	ID              int64
	BuyerID         int64
	Items           []OrderItem
	TotalCents      int64
	Status          Status
	ShippingAddress string
	Phone           string
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem captures the product price at submission time; line items are
// immutable once the order is created.
type OrderItem struct {
	OrderID    int64
	ProductID  int64
	Quantity   int
	PriceCents int64
}

func NewOrder(buyerID int64, items []OrderItem, address, phone string) Order {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.PriceCents
	}
	now := time.Now().UTC()
	return Order{
		BuyerID:         buyerID,
		Items:           items,
		TotalCents:      total,
		Status:          StatusPending,
		ShippingAddress: address,
		Phone:           phone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Cancellable reports whether the buyer may still cancel: only before the
// fulfillment worker has started mutating inventory.
func (o Order) Cancellable() bool {
	return o.Status == StatusPending || o.Status == StatusPaid
}

// OrderNumber is the human-facing identifier shown in tracking.
func (o Order) OrderNumber() string {
	return fmt.Sprintf("ORD-%06d", o.ID)
}

var ErrNotFound = errors.New("order not found")

// ValidationError marks malformed submissions; it is never retried.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func Validate(buyerID int64, items []SubmitItem, address, phone string) error {
	if buyerID <= 0 {
		return ValidationError{Msg: "buyer id is required"}
	}
	if len(items) == 0 {
		return ValidationError{Msg: "order must contain at least one item"}
	}
	if address == "" || phone == "" {
		return ValidationError{Msg: "shipping address and phone are required"}
	}
	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return ValidationError{Msg: "invalid item format"}
		}
	}
	return nil
}

// SubmitItem is the buyer's request line before prices are resolved.
type SubmitItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}
