package purchases

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a purchase relative to payments made against it.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// Purchase is the supplier invoice header. Total is the sum of its item
// totals; Paid is the cash sent against it so far.
type Purchase struct {
	ID          int64           `json:"id"`
	InvoiceNo   string          `json:"invoiceNo"`
	SupplierID  int64           `json:"supplierId"`
	Status      Status          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// PurchaseItem is one inbound line. UnitCost feeds the weighted-average cost
// recompute when the stock movement is applied.
type PurchaseItem struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchaseId"`
	ProductID  int64           `json:"productId"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unitCost"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ItemInput is one requested inbound line.
type ItemInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
}

// CreateInput creates a purchase with at least one line.
type CreateInput struct {
	SupplierID  int64
	InvoiceNo   string
	Description string
	Items       []ItemInput
	ActorID     int64
}

// ListFilter pages through purchases, optionally for one supplier.
type ListFilter struct {
	SupplierID int64
	Page       int
	PerPage    int
}

func statusFor(total, paid decimal.Decimal) Status {
	switch {
	case paid.IsZero():
		return StatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	default:
		return StatusPartial
	}
}
