package application

import (
	"context"

	invdomain "github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	"github.com/aksh-ita757/SMART-MART/internal/order/domain"
)

type OrderRepository interface {
	// Create persists the order and its line items as one atomic unit and
	// returns the order with its assigned id.
	Create(ctx context.Context, o domain.Order) (domain.Order, error)
	Get(ctx context.Context, id int64) (domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]domain.Order, error)
	// UpdateStatus is a compare-and-set; ErrStatusConflict on a miss.
	UpdateStatus(ctx context.Context, id int64, from, to domain.Status) error
}

// Catalog resolves live product prices at submission time.
type Catalog interface {
	PriceItems(ctx context.Context, items []invdomain.ItemQuantity) (map[int64]invdomain.Product, error)
}

// Enqueuer hands fulfillment work to the job queue; false means a job with
// that id already exists.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, payload []byte, priority int) (bool, error)
}

type Payments interface {
	MarkPaid(ctx context.Context, orderID, amountCents int64) error
	Refund(ctx context.Context, orderID int64) error
}

type Notifier interface {
	Publish(ctx context.Context, ev notify.StatusEvent)
}
