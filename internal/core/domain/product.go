package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               int64               `json:"id"`
	SKU              string              `json:"sku"`
	Name             string              `json:"name"`
	Description      *string             `json:"description,omitempty"`
	Unit             string              `json:"unit,omitempty"`
	PackSize         *int                `json:"pack_size,omitempty"`
	Category         *string             `json:"category,omitempty"`
	ExpiryDate       *string             `json:"expiry_date,omitempty"`
	CostPrice        decimal.NullDecimal `json:"cost_price"`
	PackCostPrice    decimal.NullDecimal `json:"pack_cost_price"`
	SellingPrice     decimal.NullDecimal `json:"selling_price"`
	PackSellingPrice decimal.NullDecimal `json:"pack_selling_price"`
	CurrentStock     Quantity            `json:"current_stock"`
	CreatedAt        string              `json:"created_at,omitempty"`
	UpdatedAt        string              `json:"updated_at,omitempty"`
	CreatedByName    *string             `json:"created_by_name,omitempty"`
}

// ProductSnapshot is the cached catalog of one branch partition.
// An empty BranchID is the unscoped default partition.
type ProductSnapshot struct {
	BranchID string    `json:"branch_id,omitempty"`
	CachedAt time.Time `json:"cached_at"`
	Products []Product `json:"products"`
}
