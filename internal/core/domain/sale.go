package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultSaleUnitType  = "piece"
	DefaultPaymentMethod = "cash"
)

// SalePayload is everything the remote service needs to recreate a sale line.
// ClientSaleID is the idempotency key the server de-duplicates on.
type SalePayload struct {
	ProductID            int64               `json:"product_id"`
	Quantity             Quantity            `json:"quantity"`
	SaleUnitType         string              `json:"sale_unit_type,omitempty"`
	PackQuantity         *int                `json:"pack_quantity,omitempty"`
	UnitPrice            decimal.Decimal     `json:"unit_price"`
	TotalPrice           decimal.Decimal     `json:"total_price"`
	CustomerName         *string             `json:"customer_name,omitempty"`
	PaymentMethod        string              `json:"payment_method,omitempty"`
	Notes                *string             `json:"notes,omitempty"`
	ClientSaleID         string              `json:"client_sale_id,omitempty"`
	AmountPaid           decimal.NullDecimal `json:"amount_paid"`
	PartialPaymentMethod *string             `json:"partial_payment_method,omitempty"`
}

type Sale struct {
	SalePayload
	ID              int64            `json:"id"`
	CreatedAt       string           `json:"created_at,omitempty"`
	CreatedByName   *string          `json:"created_by_name,omitempty"`
	DeductedBatches []map[string]any `json:"deducted_batches,omitempty"`
}

// OutboxEntry is a sale line not yet confirmed by the remote service.
// BranchID is frozen at enqueue time; CreatedAt only orders replay.
type OutboxEntry struct {
	ID        string      `json:"id"`
	BranchID  string      `json:"branch_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Sale      SalePayload `json:"sale"`
}
