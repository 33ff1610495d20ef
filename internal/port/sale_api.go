package port

import (
	"context"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
)

// SaleAPI is the remote sale/product service. An empty branchID means the
// request carries no branch and the server picks its default.
type SaleAPI interface {
	// CreateSaleForBranch must be idempotent on sale.ClientSaleID
	CreateSaleForBranch(ctx context.Context, sale domain.SalePayload, branchID string) (domain.Sale, error)

	FetchProducts(ctx context.Context, branchID string) ([]domain.Product, error)

	FetchSales(ctx context.Context, branchID string) ([]domain.Sale, error)
}
