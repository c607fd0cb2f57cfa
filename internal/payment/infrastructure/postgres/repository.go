package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aksh-ita757/SMART-MART/internal/payment/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Upsert(ctx context.Context, p domain.Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (order_id, gateway_order_ref, gateway_payment_ref, amount_cents, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (order_id) DO UPDATE
		SET gateway_payment_ref=$3, amount_cents=$4, status=$5, updated_at=$7`,
		p.OrderID, p.GatewayOrderRef, p.GatewayPayRef, p.AmountCents, p.Status, p.CreatedAt, time.Now().UTC())
	return err
}

func (r *Repository) SetStatus(ctx context.Context, orderID int64, status domain.Status, payRef string) error {
	var ct pgconn.CommandTag
	var err error
	if payRef != "" {
		ct, err = r.pool.Exec(ctx, `
			UPDATE payments SET status=$2, gateway_payment_ref=$3, updated_at=now()
			WHERE order_id=$1`, orderID, status, payRef)
	} else {
		ct, err = r.pool.Exec(ctx, `
			UPDATE payments SET status=$2, updated_at=now()
			WHERE order_id=$1`, orderID, status)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetByOrder(ctx context.Context, orderID int64) (domain.Payment, error) {
	var p domain.Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, gateway_order_ref, gateway_payment_ref, amount_cents, status, created_at, updated_at
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.GatewayOrderRef, &p.GatewayPayRef, &p.AmountCents, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}
