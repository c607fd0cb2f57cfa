package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aksh-ita757/SMART-MART/internal/payment/domain"
)

type Service struct {
	log  *slog.Logger
	repo PaymentRepository
	gw   Gateway
}

func NewService(log *slog.Logger, repo PaymentRepository, gw Gateway) *Service {
	return &Service{log: log, repo: repo, gw: gw}
}

// MarkPaid records a confirmed payment for the order. The upsert keyed on
// order id makes re-verification idempotent: a second confirmation updates
// the same row instead of creating another payment.
func (s *Service) MarkPaid(ctx context.Context, orderID, amountCents int64) error {
	now := time.Now().UTC()
	p := domain.Payment{
		OrderID:         orderID,
		GatewayOrderRef: fmt.Sprintf("mock_order_%d_%d", orderID, now.UnixMilli()),
		GatewayPayRef:   fmt.Sprintf("mock_payment_%d_%d", orderID, now.UnixMilli()),
		AmountCents:     amountCents,
		Status:          domain.StatusSuccess,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return s.repo.Upsert(ctx, p)
}

// Capture charges the gateway during fulfillment and stamps the returned
// reference onto the payment record.
func (s *Service) Capture(ctx context.Context, orderID, amountCents int64) (string, error) {
	ref, err := s.gw.Capture(ctx, orderID, amountCents)
	if err != nil {
		return "", fmt.Errorf("payment capture: %w", err)
	}
	if err := s.repo.SetStatus(ctx, orderID, domain.StatusSuccess, ref); err != nil {
		return "", err
	}
	s.log.Info("payment captured", "order_id", orderID, "ref", ref)
	return ref, nil
}

// Refund flips a captured payment to refunded when a paid order is
// cancelled before fulfillment.
func (s *Service) Refund(ctx context.Context, orderID int64) error {
	return s.repo.SetStatus(ctx, orderID, domain.StatusRefunded, "")
}

func (s *Service) GetByOrder(ctx context.Context, orderID int64) (domain.Payment, error) {
	return s.repo.GetByOrder(ctx, orderID)
}
