package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	invdomain "github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	orderdomain "github.com/aksh-ita757/SMART-MART/internal/order/domain"
	"github.com/aksh-ita757/SMART-MART/internal/queue"
	"github.com/aksh-ita757/SMART-MART/pkg/tracing"
)

// Processor executes one fulfillment job end to end. The queue guarantees a
// single live claim per job; the processor's own guards make re-delivery
// (retries, stalled reclaims) idempotent with respect to stock and status.
type Processor struct {
	log      *slog.Logger
	orders   OrderStore
	inv      Inventory
	payments Payments
	notifier Notifier
	progress Progress
	tracer   trace.Tracer
}

func NewProcessor(log *slog.Logger, orders OrderStore, inv Inventory, payments Payments, notifier Notifier, progress Progress) *Processor {
	return &Processor{
		log:      log,
		orders:   orders,
		inv:      inv,
		payments: payments,
		notifier: notifier,
		progress: progress,
		tracer:   otel.Tracer("fulfillment"),
	}
}

func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode job payload: %w", err))
	}

	ctx = tracing.ExtractMap(ctx, payload.Headers)
	ctx, span := p.tracer.Start(ctx, "ProcessOrder")
	defer span.End()

	log := p.log.With("job_id", job.ID, "order_id", payload.OrderID, "attempt", job.Attempts)

	order, err := p.orders.Get(ctx, payload.OrderID)
	if errors.Is(err, orderdomain.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("order %d: %w", payload.OrderID, err))
	}
	if err != nil {
		return fmt.Errorf("load order %d: %w", payload.OrderID, err)
	}

	// Payment not confirmed yet: skipping is an outcome, not an error.
	if order.Status == orderdomain.StatusPending {
		log.Info("skipping order awaiting payment")
		return nil
	}
	// Idempotent re-processing guard for retries and stalled reclaims.
	if order.Status.TerminalForProcessing() || order.Status == orderdomain.StatusFailed {
		log.Info("skipping order in terminal state", "status", string(order.Status))
		return nil
	}

	if err := p.claimForProcessing(ctx, log, &order); err != nil {
		return err
	}
	if order.Status != orderdomain.StatusProcessing {
		// claimForProcessing decided to skip (e.g. concurrent cancel).
		return nil
	}

	p.emit(ctx, order.ID, order.BuyerID, orderdomain.StatusProcessing)
	p.setProgress(ctx, job.ID, 20)

	shortfalls, err := p.inv.CheckAvailability(ctx, payload.Items)
	if err != nil {
		return p.failOrder(ctx, log, order, fmt.Errorf("availability check: %w", err))
	}
	p.setProgress(ctx, job.ID, 40)

	if len(shortfalls) > 0 {
		detail, _ := json.Marshal(shortfalls)
		reason := "insufficient stock: " + string(detail)
		log.Warn("order failed on availability", "shortfalls", len(shortfalls))
		p.markFailed(ctx, log, order, reason)
		// Business outcome: the job itself completes and is not retried.
		return nil
	}
	p.setProgress(ctx, job.ID, 60)

	if err := p.inv.Reserve(ctx, payload.Items); err != nil {
		var ise invdomain.InsufficientStockError
		if errors.As(err, &ise) || errors.Is(err, invdomain.ErrProductNotFound) {
			// A concurrent order won the race for the last units.
			log.Warn("reservation rejected", "err", err)
			p.markFailed(ctx, log, order, err.Error())
			return nil
		}
		return p.failOrder(ctx, log, order, fmt.Errorf("reserve stock: %w", err))
	}
	log.Info("stock reserved")
	p.setProgress(ctx, job.ID, 80)

	if _, err := p.payments.Capture(ctx, order.ID, order.TotalCents); err != nil {
		// The reservation committed; put the units back before failing.
		if rerr := p.inv.Restore(ctx, payload.Items); rerr != nil {
			log.Error("stock restore failed after capture error", "err", rerr)
		}
		return p.failOrder(ctx, log, order, fmt.Errorf("capture payment: %w", err))
	}
	p.setProgress(ctx, job.ID, 90)

	if err := p.orders.UpdateStatus(ctx, order.ID, orderdomain.StatusProcessing, orderdomain.StatusShipped); err != nil {
		return p.failOrder(ctx, log, order, fmt.Errorf("mark shipped: %w", err))
	}
	p.emit(ctx, order.ID, order.BuyerID, orderdomain.StatusShipped)
	p.setProgress(ctx, job.ID, 100)

	log.Info("order fulfilled")
	return nil
}

// claimForProcessing moves the order paid->processing. A CAS miss means the
// status changed since we read it; the reload decides whether this attempt
// may continue (already processing from a prior crashed attempt) or must
// skip (cancelled concurrently). On success order.Status is updated in
// place.
func (p *Processor) claimForProcessing(ctx context.Context, log *slog.Logger, order *orderdomain.Order) error {
	err := p.orders.UpdateStatus(ctx, order.ID, orderdomain.StatusPaid, orderdomain.StatusProcessing)
	if err == nil {
		order.Status = orderdomain.StatusProcessing
		return nil
	}
	if !errors.Is(err, orderdomain.ErrStatusConflict) {
		return fmt.Errorf("mark processing: %w", err)
	}

	fresh, gerr := p.orders.Get(ctx, order.ID)
	if gerr != nil {
		return fmt.Errorf("reload order %d: %w", order.ID, gerr)
	}
	switch fresh.Status {
	case orderdomain.StatusProcessing:
		// A previous attempt of this same job crashed after the transition;
		// the queue lock says it is ours to resume. Resuming re-runs the
		// reservation, so a crash landing between the reservation commit
		// and the shipped transition decrements stock twice. Closing that
		// window needs a per-order reservation marker checked here.
		order.Status = orderdomain.StatusProcessing
		return nil
	default:
		// Concurrently cancelled or otherwise moved on; nothing to do.
		log.Info("skipping after status race", "status", string(fresh.Status))
		order.Status = fresh.Status
		return nil
	}
}

// failOrder handles the catch-all path: record the terminal order state,
// emit the event, and re-raise so the queue's retry policy decides.
func (p *Processor) failOrder(ctx context.Context, log *slog.Logger, order orderdomain.Order, err error) error {
	p.markFailed(ctx, log, order, err.Error())
	return err
}

func (p *Processor) markFailed(ctx context.Context, log *slog.Logger, order orderdomain.Order, reason string) {
	if err := p.orders.MarkFailed(ctx, order.ID, reason); err != nil {
		log.Error("mark failed errored", "err", err)
		return
	}
	p.emit(ctx, order.ID, order.BuyerID, orderdomain.StatusFailed)
}

func (p *Processor) emit(ctx context.Context, orderID, buyerID int64, status orderdomain.Status) {
	p.notifier.Publish(ctx, notify.NewStatusEvent(orderID, buyerID, status, notify.MessageFor(status)))
}

func (p *Processor) setProgress(ctx context.Context, jobID string, pct int) {
	if err := p.progress.SetProgress(ctx, jobID, pct); err != nil {
		p.log.Debug("progress update failed", "job_id", jobID, "err", err)
	}
}
