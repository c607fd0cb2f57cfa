package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aksh-ita757/SMART-MART/internal/order/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Create inserts the order and its line items in one transaction and returns
// the order with its generated id.
func (r *Repository) Create(ctx context.Context, o domain.Order) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO orders (buyer_id, total_cents, status, shipping_address, phone, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id`,
		o.BuyerID, o.TotalCents, o.Status, o.ShippingAddress, o.Phone, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		return domain.Order{}, err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, price_cents) VALUES ($1,$2,$3,$4)`,
			o.ID, item.ProductID, item.Quantity, item.PriceCents)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, buyer_id, total_cents, status, shipping_address, phone, coalesce(failure_reason,''), created_at, updated_at
			FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.BuyerID, &o.TotalCents, &o.Status, &o.ShippingAddress, &o.Phone, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, quantity, price_cents FROM order_items WHERE order_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		item := domain.OrderItem{OrderID: id}
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.PriceCents); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *Repository) ListByBuyer(ctx context.Context, buyerID int64) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, buyer_id, total_cents, status, shipping_address, phone, coalesce(failure_reason,''), created_at, updated_at
			FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC, id DESC`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.TotalCents, &o.Status, &o.ShippingAddress, &o.Phone, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateStatus moves the order from one status to another only if it still
// holds the expected status. ErrStatusConflict means another writer got there
// first.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to domain.Status) error {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrStatusConflict
	}
	return nil
}

// MarkFailed records the failure reason. Only orders still in flight can fail;
// a concurrently cancelled order is left untouched.
func (r *Repository) MarkFailed(ctx context.Context, id int64, reason string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status=$2, failure_reason=$3, updated_at=now()
			WHERE id=$1 AND status IN ('paid','processing')`,
		id, domain.StatusFailed, reason)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		r.log.Warn("mark failed skipped, order not in flight", "order_id", id)
	}
	return nil
}
