package domain

import (
	"errors"
	"fmt"
	"time"
)

type Product struct {
	ID         int64
	Name       string
	Category   string
	Stock      int
	PriceCents int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ItemQuantity is a (product, quantity) request line as seen by the
// reservation routine.
type ItemQuantity struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Shortfall describes one product that cannot cover a requested quantity.
type Shortfall struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name,omitempty"`
	Reason    string `json:"reason"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

var ErrProductNotFound = errors.New("product not found")

// InsufficientStockError aborts a reservation; it is a business outcome,
// not an infrastructure failure, and is never retried.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.Name, e.Available, e.Requested)
}
