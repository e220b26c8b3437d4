package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a sale relative to payments received against it.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// Sale is the invoice header. Total is the sum of its item totals; Paid is
// the cash received against it so far.
type Sale struct {
	ID          int64           `json:"id"`
	InvoiceNo   string          `json:"invoiceNo"`
	CustomerID  int64           `json:"customerId"`
	Status      Status          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SaleItem is one invoice line.
type SaleItem struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"saleId"`
	ProductID int64           `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ItemInput is one requested invoice line.
type ItemInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateInput creates an invoice with at least one line.
type CreateInput struct {
	CustomerID  int64
	InvoiceNo   string
	Description string
	Items       []ItemInput
	ActorID     int64
}

// ListFilter pages through invoices, optionally for one customer.
type ListFilter struct {
	CustomerID int64
	Page       int
	PerPage    int
}

// statusFor derives the payment status from amounts.
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
