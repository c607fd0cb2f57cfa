package fulfillment

import (
	"context"

	invdomain "github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	orderdomain "github.com/aksh-ita757/SMART-MART/internal/order/domain"
)

type OrderStore interface {
	Get(ctx context.Context, id int64) (orderdomain.Order, error)
	// UpdateStatus is a compare-and-set: it returns ErrStatusConflict when
	// the order is no longer in the from status.
	UpdateStatus(ctx context.Context, id int64, from, to orderdomain.Status) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type Inventory interface {
	CheckAvailability(ctx context.Context, items []invdomain.ItemQuantity) ([]invdomain.Shortfall, error)
	Reserve(ctx context.Context, items []invdomain.ItemQuantity) error
	Restore(ctx context.Context, items []invdomain.ItemQuantity) error
}

type Payments interface {
	Capture(ctx context.Context, orderID, amountCents int64) (string, error)
}

type Notifier interface {
	Publish(ctx context.Context, ev notify.StatusEvent)
}

type Progress interface {
	SetProgress(ctx context.Context, jobID string, pct int) error
}
