package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	invdomain "github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
	"github.com/aksh-ita757/SMART-MART/internal/order/application"
	"github.com/aksh-ita757/SMART-MART/internal/order/domain"
	"github.com/aksh-ita757/SMART-MART/internal/queue"
	"github.com/aksh-ita757/SMART-MART/pkg/idempotency"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// IdempotencyStore remembers submit request keys across retries. Claim must
// be first-writer-wins; Release frees a claim whose request failed before a
// response could be recorded.
type IdempotencyStore interface {
	Key(buyerID int64, requestKey string) string
	Claim(ctx context.Context, key, value string) (claimed bool, existing string, err error)
	Record(ctx context.Context, key, value string) error
	Release(ctx context.Context, key string) error
}

type Handler struct {
	log     *slog.Logger
	service *application.Service
	queue   *queue.Queue
	idem    IdempotencyStore
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, q *queue.Queue, idem IdempotencyStore) *Handler {
	return &Handler{
		log:     log,
		service: service,
		queue:   q,
		idem:    idem,
		tracer:  otel.Tracer("order-http"),
	}
}

type submitOrderReq struct {
	Items           []domain.SubmitItem `json:"items"`
	ShippingAddress string              `json:"shippingAddress"`
	Phone           string              `json:"phone"`
}

type simulatePaymentReq struct {
	OrderID int64 `json:"orderId"`
}

type orderItemResp struct {
	ProductID  int64 `json:"productId"`
	Quantity   int   `json:"quantity"`
	PriceCents int64 `json:"priceCents"`
}

type orderResp struct {
	OrderID       int64           `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	Status        domain.Status   `json:"status"`
	TotalCents    int64           `json:"totalCents"`
	Items         []orderItemResp `json:"items,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toOrderResp(o domain.Order) orderResp {
	resp := orderResp{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber(),
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResp{ProductID: item.ProductID, Quantity: item.Quantity, PriceCents: item.PriceCents})
	}
	return resp
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.submitOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/orders/{id}/tracking", h.trackOrder)
	r.Post("/payments/simulate", h.simulatePayment)
	r.Get("/jobs/{id}", h.getJob)
	r.Get("/queue/stats", h.queueStats)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SubmitOrder")
	defer span.End()

	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("buyer.id", buyerID))

	var req submitOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	// A repeated Idempotency-Key replays the stored response instead of
	// creating a second order.
	requestKey := r.Header.Get("Idempotency-Key")
	var idemKey string
	if requestKey != "" {
		idemKey = h.idem.Key(buyerID, requestKey)
		claimed, existing, err := h.idem.Claim(ctx, idemKey, idempotency.InFlight)
		if err != nil {
			h.log.Error("idempotency claim failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !claimed {
			if existing == idempotency.InFlight {
				writeError(w, http.StatusConflict, "request already in progress")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(existing))
			return
		}
	}

	result, err := h.service.Submit(ctx, buyerID, req.Items, req.ShippingAddress, req.Phone)
	if err != nil {
		// The claim must not survive a failed submit, or every retry with
		// the same key would bounce off the in-flight sentinel until the
		// TTL expires.
		h.releaseClaim(ctx, idemKey)
		h.writeServiceError(w, err)
		return
	}

	body := struct {
		orderResp
		JobID string `json:"jobId"`
	}{toOrderResp(result.Order), result.JobID}

	if idemKey != "" {
		if raw, err := json.Marshal(body); err == nil {
			if err := h.idem.Record(ctx, idemKey, string(raw)); err != nil {
				h.log.Warn("idempotency record failed", "err", err)
				h.releaseClaim(ctx, idemKey)
			}
		}
	}
	writeJSON(w, http.StatusAccepted, body)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	orders, err := h.service.ListByBuyer(ctx, buyerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := make([]orderResp, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(ctx, buyerID, orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(ctx, buyerID, orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *Handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TrackOrder")
	defer span.End()

	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFrom(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(ctx, buyerID, orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := struct {
		OrderID           int64                 `json:"orderId"`
		OrderNumber       string                `json:"orderNumber"`
		Status            domain.Status         `json:"status"`
		Timeline          []domain.TimelineStep `json:"timeline"`
		EstimatedDelivery *time.Time            `json:"estimatedDelivery,omitempty"`
	}{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber(),
		Status:      order.Status,
		Timeline:    order.Timeline(),
	}
	if eta := order.EstimatedDelivery(); !eta.IsZero() {
		resp.EstimatedDelivery = &eta
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) simulatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SimulatePayment")
	defer span.End()

	buyerID, ok := buyerFrom(w, r)
	if !ok {
		return
	}
	var req simulatePaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	order, err := h.service.VerifyPayment(ctx, buyerID, req.OrderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetJob")
	defer span.End()

	status, err := h.queue.Status(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.log.Error("job status lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) queueStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "QueueStats")
	defer span.End()

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		h.log.Error("queue stats failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) releaseClaim(ctx context.Context, idemKey string) {
	if idemKey == "" {
		return
	}
	if err := h.idem.Release(ctx, idemKey); err != nil {
		h.log.Warn("idempotency release failed", "err", err)
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, invdomain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	default:
		h.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func buyerFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	buyerID, err := strconv.ParseInt(r.Header.Get("X-Buyer-ID"), 10, 64)
	if err != nil || buyerID <= 0 {
		writeError(w, http.StatusUnauthorized, "missing or invalid X-Buyer-ID header")
		return 0, false
	}
	return buyerID, true
}

func orderIDFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
