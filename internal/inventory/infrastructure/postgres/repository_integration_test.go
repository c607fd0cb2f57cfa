package postgres

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS products (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL,
    category    TEXT NOT NULL,
    stock       INTEGER NOT NULL CHECK (stock >= 0),
    price_cents BIGINT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`

var (
	pgOnce sync.Once
	pgPool *pgxpool.Pool
	pgErr  error
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pgOnce.Do(func() {
		ctx := context.Background()
		c, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("smartmart"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = err
			return
		}
		dsn, err := c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			pgErr = err
			return
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			pgErr = err
			return
		}
		if _, err := pool.Exec(ctx, testSchema); err != nil {
			pgErr = err
			return
		}
		pgPool = pool
	})
	require.NoError(t, pgErr)
	return NewRepository(slog.Default(), pgPool)
}

func seedProduct(t *testing.T, name string, stock int) int64 {
	t.Helper()
	var id int64
	err := pgPool.QueryRow(context.Background(),
		`INSERT INTO products (name, category, stock, price_cents) VALUES ($1,'test',$2,999) RETURNING id`,
		name, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, id int64) int {
	t.Helper()
	var stock int
	require.NoError(t, pgPool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id=$1`, id).Scan(&stock))
	return stock
}

func TestReserveExactStock(t *testing.T) {
	repo := testRepo(t)
	id := seedProduct(t, "exact", 5)

	err := repo.Reserve(context.Background(), []domain.ItemQuantity{{ProductID: id, Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, id))
}

func TestReserveOneOverStock(t *testing.T) {
	repo := testRepo(t)
	id := seedProduct(t, "over", 5)

	err := repo.Reserve(context.Background(), []domain.ItemQuantity{{ProductID: id, Quantity: 6}})

	var ise domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, id, ise.ProductID)
	assert.Equal(t, 6, ise.Requested)
	assert.Equal(t, 5, ise.Available)
	assert.Equal(t, 5, stockOf(t, id), "failed reservation must not change stock")
}

func TestReserveAllOrNothing(t *testing.T) {
	repo := testRepo(t)
	ok := seedProduct(t, "plenty", 10)
	short := seedProduct(t, "scarce", 1)

	err := repo.Reserve(context.Background(), []domain.ItemQuantity{
		{ProductID: ok, Quantity: 2},
		{ProductID: short, Quantity: 3},
	})

	var ise domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 10, stockOf(t, ok), "no partial decrement may survive a shortfall")
	assert.Equal(t, 1, stockOf(t, short))
}

func TestReserveUnknownProduct(t *testing.T) {
	repo := testRepo(t)
	id := seedProduct(t, "known", 5)

	err := repo.Reserve(context.Background(), []domain.ItemQuantity{
		{ProductID: id, Quantity: 1},
		{ProductID: 99999999, Quantity: 1},
	})

	require.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, 5, stockOf(t, id))
}

func TestReserveConcurrentNeverOversells(t *testing.T) {
	repo := testRepo(t)
	id := seedProduct(t, "contended", 5)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Reserve(context.Background(), []domain.ItemQuantity{{ProductID: id, Quantity: 1}})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var ise domain.InsufficientStockError
			require.True(t, errors.As(err, &ise), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, stockOf(t, id))
}

func TestRestoreReturnsExactQuantities(t *testing.T) {
	repo := testRepo(t)
	id := seedProduct(t, "restorable", 8)

	items := []domain.ItemQuantity{{ProductID: id, Quantity: 3}}
	require.NoError(t, repo.Reserve(context.Background(), items))
	require.Equal(t, 5, stockOf(t, id))

	require.NoError(t, repo.Restore(context.Background(), items))
	assert.Equal(t, 8, stockOf(t, id))
}

func TestGetProducts(t *testing.T) {
	repo := testRepo(t)
	a := seedProduct(t, "alpha", 3)
	b := seedProduct(t, "beta", 7)

	products, err := repo.GetProducts(context.Background(), []int64{a, b, 99999998})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "alpha", products[a].Name)
	assert.Equal(t, 3, products[a].Stock)
	assert.Equal(t, 7, products[b].Stock)
}
