package application

import (
	"context"

	"github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
)

type StockRepository interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	Reserve(ctx context.Context, items []domain.ItemQuantity) error
	Restore(ctx context.Context, items []domain.ItemQuantity) error
}
