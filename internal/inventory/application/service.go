package application

import (
	"context"
	"fmt"

	"github.com/aksh-ita757/SMART-MART/internal/inventory/domain"
)

type Service struct {
	repo StockRepository
}

func NewService(repo StockRepository) *Service {
	return &Service{repo: repo}
}

// PriceItems resolves the live catalog price for each requested product.
// A missing product fails the whole lookup.
func (s *Service) PriceItems(ctx context.Context, items []domain.ItemQuantity) (map[int64]domain.Product, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if _, ok := products[it.ProductID]; !ok {
			return nil, fmt.Errorf("product %d: %w", it.ProductID, domain.ErrProductNotFound)
		}
	}
	return products, nil
}

// CheckAvailability is the non-locking pre-check: it reads current stock for
// every line item and collects all shortfalls instead of stopping at the
// first one.
func (s *Service) CheckAvailability(ctx context.Context, items []domain.ItemQuantity) ([]domain.Shortfall, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	var shortfalls []domain.Shortfall
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			shortfalls = append(shortfalls, domain.Shortfall{
				ProductID: it.ProductID,
				Reason:    "product not found",
				Requested: it.Quantity,
			})
			continue
		}
		if p.Stock < it.Quantity {
			shortfalls = append(shortfalls, domain.Shortfall{
				ProductID: it.ProductID,
				Name:      p.Name,
				Reason:    "insufficient stock",
				Requested: it.Quantity,
				Available: p.Stock,
			})
		}
	}
	return shortfalls, nil
}

// Reserve executes the locked all-or-nothing decrement.
func (s *Service) Reserve(ctx context.Context, items []domain.ItemQuantity) error {
	return s.repo.Reserve(ctx, items)
}

// Restore compensates a previously committed reservation, e.g. when payment
// capture fails after stock was already decremented.
func (s *Service) Restore(ctx context.Context, items []domain.ItemQuantity) error {
	return s.repo.Restore(ctx, items)
}
