package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the stock aggregate plus its identity fields. Quantity, cost and
// price snapshots are maintained by stock movements; direct edits route
// through the inventory service with an explicit movement kind.
type Product struct {
	ID               int64           `json:"id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	Cost             decimal.Decimal `json:"cost"`
	Price            decimal.Decimal `json:"price"`
	AvgPrice         decimal.Decimal `json:"avgPrice"`
	PreviousCost     decimal.Decimal `json:"previousCost"`
	PreviousPrice    decimal.Decimal `json:"previousPrice"`
	PreviousAvgPrice decimal.Decimal `json:"previousAvgPrice"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// CreateInput seeds a new product. Stock starts at zero; initial cost and
// price become the first snapshot values.
type CreateInput struct {
	SKU   string
	Name  string
	Unit  string
	Cost  decimal.Decimal
	Price decimal.Decimal
}

// UpdateInput revises a product. Identity fields apply directly; a non-nil
// Quantity, Cost or Price must carry a movement kind and flows through the
// stock engine.
type UpdateInput struct {
	Name         string
	Unit         string
	MovementKind string
	Quantity     *decimal.Decimal
	Cost         *decimal.Decimal
	Price        *decimal.Decimal
	Description  string
	ActorID      int64
}
