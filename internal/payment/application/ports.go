package application

import (
	"context"

	"github.com/aksh-ita757/SMART-MART/internal/payment/domain"
)

type PaymentRepository interface {
	Upsert(ctx context.Context, p domain.Payment) error
	SetStatus(ctx context.Context, orderID int64, status domain.Status, payRef string) error
	GetByOrder(ctx context.Context, orderID int64) (domain.Payment, error)
}

// Gateway is the external payment collaborator; Capture is a
// bounded-duration call that succeeds or returns an error.
type Gateway interface {
	Capture(ctx context.Context, orderID, amountCents int64) (ref string, err error)
}
