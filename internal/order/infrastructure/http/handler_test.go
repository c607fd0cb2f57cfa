package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invdomain "github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
	"github.com/aksh-ita757/SMART-MART/internal/notify"
	"github.com/aksh-ita757/SMART-MART/internal/order/application"
	"github.com/aksh-ita757/SMART-MART/internal/order/domain"
	"github.com/aksh-ita757/SMART-MART/pkg/idempotency"
)

type memRepo struct {
	nextID int64
	orders map[int64]*domain.Order
}

func (m *memRepo) Create(_ context.Context, o domain.Order) (domain.Order, error) {
	m.nextID++
	o.ID = m.nextID
	stored := o
	m.orders[o.ID] = &stored
	return o, nil
}

func (m *memRepo) Get(_ context.Context, id int64) (domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return *o, nil
}

func (m *memRepo) ListByBuyer(_ context.Context, buyerID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id int64, from, to domain.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != from {
		return domain.ErrStatusConflict
	}
	o.Status = to
	return nil
}

type memCatalog struct {
	products map[int64]invdomain.Product
}

func (m *memCatalog) PriceItems(_ context.Context, items []invdomain.ItemQuantity) (map[int64]invdomain.Product, error) {
	out := map[int64]invdomain.Product{}
	for _, it := range items {
		p, ok := m.products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", it.ProductID, invdomain.ErrProductNotFound)
		}
		out[it.ProductID] = p
	}
	return out, nil
}

type memEnqueuer struct {
	jobs map[string][]byte
}

func (m *memEnqueuer) Enqueue(_ context.Context, jobID string, payload []byte, _ int) (bool, error) {
	if _, ok := m.jobs[jobID]; ok {
		return false, nil
	}
	m.jobs[jobID] = payload
	return true, nil
}

type memPayments struct{}

func (memPayments) MarkPaid(context.Context, int64, int64) error { return nil }
func (memPayments) Refund(context.Context, int64) error          { return nil }

type memNotifier struct{}

func (memNotifier) Publish(context.Context, notify.StatusEvent) {}

// memIdemStore mirrors the Redis store's claim semantics in memory.
type memIdemStore struct {
	vals map[string]string
}

func (m *memIdemStore) Key(buyerID int64, requestKey string) string {
	return fmt.Sprintf("idem:submit:%d:%s", buyerID, requestKey)
}

func (m *memIdemStore) Claim(_ context.Context, key, value string) (bool, string, error) {
	if existing, ok := m.vals[key]; ok {
		return false, existing, nil
	}
	m.vals[key] = value
	return true, "", nil
}

func (m *memIdemStore) Record(_ context.Context, key, value string) error {
	m.vals[key] = value
	return nil
}

func (m *memIdemStore) Release(_ context.Context, key string) error {
	delete(m.vals, key)
	return nil
}

type handlerFixture struct {
	handler http.Handler
	repo    *memRepo
	queue   *memEnqueuer
	idem    *memIdemStore
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		repo:  &memRepo{orders: map[int64]*domain.Order{}},
		queue: &memEnqueuer{jobs: map[string][]byte{}},
		idem:  &memIdemStore{vals: map[string]string{}},
	}
	catalog := &memCatalog{products: map[int64]invdomain.Product{
		101: {ID: 101, Name: "Milk 1L", Stock: 10, PriceCents: 6200},
	}}
	svc := application.NewService(slog.Default(), f.repo, catalog, f.queue, memPayments{}, memNotifier{})
	f.handler = NewHandler(slog.Default(), svc, nil, f.idem).Routes()
	return f
}

func (f *handlerFixture) submit(t *testing.T, body, idemKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("X-Buyer-ID", "7")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"items":[{"productId":101,"quantity":2}],"shippingAddress":"42 Market St","phone":"555-0101"}`
const unknownProductBody = `{"items":[{"productId":999,"quantity":1}],"shippingAddress":"42 Market St","phone":"555-0101"}`

func TestSubmitOrder(t *testing.T) {
	f := newHandlerFixture()

	rec := f.submit(t, validBody, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		OrderID int64  `json:"orderId"`
		JobID   string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.OrderID)
	assert.Equal(t, "order-1", resp.JobID)
	assert.Contains(t, f.queue.jobs, "order-1")
}

func TestSubmitOrderUnknownProductReturns404(t *testing.T) {
	f := newHandlerFixture()

	rec := f.submit(t, unknownProductBody, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "product not found")
	assert.Empty(t, f.repo.orders)
}

func TestSubmitOrderValidationReturns400(t *testing.T) {
	f := newHandlerFixture()

	rec := f.submit(t, `{"items":[],"shippingAddress":"a","phone":"p"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrderIdempotentReplay(t *testing.T) {
	f := newHandlerFixture()

	first := f.submit(t, validBody, "req-1")
	require.Equal(t, http.StatusAccepted, first.Code)

	replay := f.submit(t, validBody, "req-1")
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.JSONEq(t, first.Body.String(), replay.Body.String())
	assert.Len(t, f.repo.orders, 1, "replay must not create a second order")
	assert.Len(t, f.queue.jobs, 1)
}

func TestSubmitOrderRetryAfterFailureReusesKey(t *testing.T) {
	// A failed submit must release its claim so the client can retry with
	// the same key instead of being rejected until the TTL expires.
	f := newHandlerFixture()

	failed := f.submit(t, unknownProductBody, "req-2")
	require.Equal(t, http.StatusNotFound, failed.Code)
	assert.NotContains(t, f.idem.vals, f.idem.Key(7, "req-2"), "claim must be released on failure")

	retry := f.submit(t, validBody, "req-2")
	assert.Equal(t, http.StatusAccepted, retry.Code)
	assert.Len(t, f.repo.orders, 1)
}

func TestSubmitOrderInFlightConflict(t *testing.T) {
	f := newHandlerFixture()
	f.idem.vals[f.idem.Key(7, "req-3")] = idempotency.InFlight

	rec := f.submit(t, validBody, "req-3")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, f.repo.orders)
}
