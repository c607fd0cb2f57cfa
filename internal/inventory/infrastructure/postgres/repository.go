package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
)

// reserveTimeout bounds how long a reservation may wait on row locks before
// the whole transaction is rolled back.
const reserveTimeout = 10 * time.Second

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{
		log:  log,
		pool: pool,
	}
}

func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, category, stock, price_cents, created_at, updated_at
		FROM products
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Stock, &p.PriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Reserve decrements stock for every item inside one READ COMMITTED
// transaction. Row locks are always acquired in ascending product-id order;
// every concurrent reservation walking the same total order makes circular
// wait impossible. Any shortfall aborts the whole transaction, so no partial
// decrement is ever visible.
func (r *Repository) Reserve(ctx context.Context, items []domain.ItemQuantity) error {
	ctx, cancel := context.WithTimeout(ctx, reserveTimeout)
	defer cancel()

	sorted := make([]domain.ItemQuantity, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range sorted {
		var name string
		var stock int
		err := tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).
			Scan(&name, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("product %d: %w", it.ProductID, domain.ErrProductNotFound)
		}
		if err != nil {
			return err
		}

		if stock < it.Quantity {
			return domain.InsufficientStockError{
				ProductID: it.ProductID,
				Name:      name,
				Requested: it.Quantity,
				Available: stock,
			}
		}

		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1`, it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("product %d: unexpected rows affected", it.ProductID)
		}
		r.log.Debug("stock reserved", "product_id", it.ProductID, "qty", it.Quantity, "remaining", stock-it.Quantity)
	}

	return tx.Commit(ctx)
}

// Restore puts previously reserved quantities back. It only touches rows a
// single order already reserved, so it does not need the global lock
// ordering that Reserve does.
func (r *Repository) Restore(ctx context.Context, items []domain.ItemQuantity) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now()
			WHERE id = $1`, it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			r.log.Warn("restore skipped missing product", "product_id", it.ProductID)
		}
	}

	return tx.Commit(ctx)
}
