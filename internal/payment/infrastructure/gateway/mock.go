package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Mock stands in for the real payment gateway. Capture takes a fixed,
// bounded amount of time and honors context cancellation, the same shape a
// real network call would have.
type Mock struct {
	log   *slog.Logger
	delay time.Duration
}

func NewMock(log *slog.Logger, delay time.Duration) *Mock {
	return &Mock{log: log, delay: delay}
}

func (m *Mock) Capture(ctx context.Context, orderID, amountCents int64) (string, error) {
	t := time.NewTimer(m.delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("gateway capture for order %d: %w", orderID, ctx.Err())
	case <-t.C:
	}

	ref := "cap_" + uuid.NewString()
	m.log.Debug("gateway capture ok", "order_id", orderID, "amount_cents", amountCents, "ref", ref)
	return ref, nil
}
