package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
)

// StockProjector decrements cached stock for sales the server has not
// reflected yet.
type StockProjector struct {
	cache *ProductCache
}

func NewStockProjector(cache *ProductCache) *StockProjector {
	return &StockProjector{cache: cache}
}

// ApplyLocalSaleToCachedProducts writes the projected snapshot back and
// returns it. With no cached snapshot there is nothing to project onto and
// the result is absent.
func (p *StockProjector) ApplyLocalSaleToCachedProducts(ctx context.Context, sales []domain.SalePayload, branch domain.BranchRef) ([]domain.Product, bool) {
	branchID := p.cache.ResolveBranch(branch)
	return p.cache.update(ctx, branchID, func(products []domain.Product) []domain.Product {
		return ProjectStock(products, sales)
	})
}

// ProjectStock returns products with each sale's quantity taken off the
// matching product's stock, floored at zero. Lines whose stock or quantity is
// not a finite number, or whose product is unknown, change nothing.
func ProjectStock(products []domain.Product, sales []domain.SalePayload) []domain.Product {
	projected := append([]domain.Product(nil), products...)

	index := make(map[int64]int, len(projected))
	for i, p := range projected {
		if _, seen := index[p.ID]; !seen {
			index[p.ID] = i
		}
	}

	for _, sale := range sales {
		i, ok := index[sale.ProductID]
		if !ok {
			continue
		}
		stock, okStock := projected[i].CurrentStock.Decimal()
		qty, okQty := sale.Quantity.Decimal()
		if !okStock || !okQty {
			continue
		}

		next := stock.Sub(qty)
		if next.IsNegative() {
			next = decimal.Zero
		}
		projected[i].CurrentStock = domain.NewQuantity(next)
	}
	return projected
}
