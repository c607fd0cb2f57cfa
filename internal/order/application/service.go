package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aksh-ita757/SMART-MART/internal/fulfillment"
	invdomain "github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	"github.com/aksh-ita757/SMART-MART/internal/order/domain"
	"github.com/aksh-ita757/SMART-MART/pkg/tracing"
)

type Service struct {
	log      *slog.Logger
	repo     OrderRepository
	catalog  Catalog
	queue    Enqueuer
	payments Payments
	notifier Notifier
}

func NewService(log *slog.Logger, repo OrderRepository, catalog Catalog, queue Enqueuer, payments Payments, notifier Notifier) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		catalog:  catalog,
		queue:    queue,
		payments: payments,
		notifier: notifier,
	}
}

type SubmitResult struct {
	Order domain.Order
	JobID string
}

// Submit validates the request, captures live prices onto the line items,
// persists order+items atomically and enqueues the fulfillment job. The job
// id order-{id} makes a duplicate enqueue a no-op.
func (s *Service) Submit(ctx context.Context, buyerID int64, items []domain.SubmitItem, address, phone string) (SubmitResult, error) {
	if err := domain.Validate(buyerID, items, address, phone); err != nil {
		return SubmitResult{}, err
	}

	quantities := make([]invdomain.ItemQuantity, len(items))
	for i, it := range items {
		quantities[i] = invdomain.ItemQuantity{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	products, err := s.catalog.PriceItems(ctx, quantities)
	if err != nil {
		return SubmitResult{}, err
	}

	lineItems := make([]domain.OrderItem, len(items))
	for i, it := range items {
		lineItems[i] = domain.OrderItem{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			PriceCents: products[it.ProductID].PriceCents,
		}
	}

	order, err := s.repo.Create(ctx, domain.NewOrder(buyerID, lineItems, address, phone))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create order: %w", err)
	}

	payload, err := json.Marshal(fulfillment.JobPayload{
		OrderID: order.ID,
		Items:   quantities,
		Headers: tracing.InjectMap(ctx),
	})
	if err != nil {
		return SubmitResult{}, err
	}

	jobID := fulfillment.JobID(order.ID)
	if _, err := s.queue.Enqueue(ctx, jobID, payload, 1); err != nil {
		return SubmitResult{}, fmt.Errorf("enqueue %s: %w", jobID, err)
	}

	s.log.Info("order submitted", "order_id", order.ID, "buyer_id", buyerID, "job_id", jobID, "total_cents", order.TotalCents)
	return SubmitResult{Order: order, JobID: jobID}, nil
}

// Get returns the buyer's order; another buyer's order reads as not found.
func (s *Service) Get(ctx context.Context, buyerID, orderID int64) (domain.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.BuyerID != buyerID {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListByBuyer(ctx context.Context, buyerID int64) ([]domain.Order, error) {
	return s.repo.ListByBuyer(ctx, buyerID)
}

// VerifyPayment confirms payment for a pending order (simulated gateway
// verification). Idempotent at the payment layer; the status CAS rejects a
// second confirmation.
func (s *Service) VerifyPayment(ctx context.Context, buyerID, orderID int64) (domain.Order, error) {
	order, err := s.Get(ctx, buyerID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.StatusPending {
		return domain.Order{}, domain.ValidationError{Msg: "order is not in pending state"}
	}

	if err := s.payments.MarkPaid(ctx, order.ID, order.TotalCents); err != nil {
		return domain.Order{}, fmt.Errorf("record payment: %w", err)
	}
	if err := s.repo.UpdateStatus(ctx, order.ID, domain.StatusPending, domain.StatusPaid); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return domain.Order{}, domain.ValidationError{Msg: "order is not in pending state"}
		}
		return domain.Order{}, err
	}
	order.Status = domain.StatusPaid

	s.notifier.Publish(ctx, notify.NewStatusEvent(order.ID, order.BuyerID, domain.StatusPaid, notify.MessageFor(domain.StatusPaid)))
	s.log.Info("payment verified", "order_id", order.ID)
	return order, nil
}

// Cancel stops an order before fulfillment starts. The compare-and-set
// against the observed status means a cancel racing the worker's move to
// processing loses cleanly: exactly one of the two transitions commits.
func (s *Service) Cancel(ctx context.Context, buyerID, orderID int64) (domain.Order, error) {
	order, err := s.Get(ctx, buyerID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Cancellable() {
		return domain.Order{}, domain.ValidationError{Msg: "order can no longer be cancelled"}
	}

	wasPaid := order.Status == domain.StatusPaid
	if err := s.repo.UpdateStatus(ctx, order.ID, order.Status, domain.StatusCancelled); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return domain.Order{}, domain.ValidationError{Msg: "order can no longer be cancelled"}
		}
		return domain.Order{}, err
	}
	order.Status = domain.StatusCancelled

	if wasPaid {
		if err := s.payments.Refund(ctx, order.ID); err != nil {
			s.log.Error("refund failed", "order_id", order.ID, "err", err)
		}
	}

	s.notifier.Publish(ctx, notify.NewStatusEvent(order.ID, order.BuyerID, domain.StatusCancelled, notify.MessageFor(domain.StatusCancelled)))
	s.log.Info("order cancelled", "order_id", order.ID)
	return order, nil
}
