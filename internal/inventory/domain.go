package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementSale moves stock out to a customer.
	MovementSale MovementKind = "sale"
	// MovementPurchase moves stock in from a supplier.
	MovementPurchase MovementKind = "purchase"
	// MovementRefund returns previously sold stock.
	MovementRefund MovementKind = "refund"
	// MovementAdjustment is a manual correction.
	MovementAdjustment MovementKind = "adjustment"
	// MovementMiscellaneous covers everything else with a stock effect.
	MovementMiscellaneous MovementKind = "miscellaneous"
)

// StockMovement is one immutable record of a product quantity change and the
// cost/price snapshot taken with it. StockAfter is the product quantity
// immediately after this move.
type StockMovement struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"productId"`
	Kind             MovementKind    `json:"kind"`
	Quantity         decimal.Decimal `json:"quantity"`
	StockAfter       decimal.Decimal `json:"stockAfter"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	CostPrice        decimal.Decimal `json:"costPrice"`
	SellPrice        decimal.Decimal `json:"sellPrice"`
	AvgPrice         decimal.Decimal `json:"avgPrice"`
	PreviousCost     decimal.Decimal `json:"previousCost"`
	PreviousPrice    decimal.Decimal `json:"previousPrice"`
	PreviousAvgPrice decimal.Decimal `json:"previousAvgPrice"`
	CounterpartyID   *int64          `json:"counterpartyId,omitempty"`
	InvoiceRef       string          `json:"invoiceRef,omitempty"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Description      string          `json:"description,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// ProductStock is the live aggregate kept in lockstep with the movement
// ledger: Quantity always equals the latest StockAfter.
type ProductStock struct {
	ProductID        int64           `json:"productId"`
	Quantity         decimal.Decimal `json:"quantity"`
	Cost             decimal.Decimal `json:"cost"`
	Price            decimal.Decimal `json:"price"`
	AvgPrice         decimal.Decimal `json:"avgPrice"`
	PreviousCost     decimal.Decimal `json:"previousCost"`
	PreviousPrice    decimal.Decimal `json:"previousPrice"`
	PreviousAvgPrice decimal.Decimal `json:"previousAvgPrice"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// MovementInput describes one stock-affecting event. Quantity is the positive
// magnitude; the sign is derived from Kind (Negative applies only to
// adjustment and miscellaneous moves).
type MovementInput struct {
	ProductID      int64
	Kind           MovementKind
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	Negative       bool
	CounterpartyID *int64
	InvoiceRef     string
	Description    string
	ActorID        int64
}

// ItemDelta describes a line-item create, edit or delete. Old* is zero for a
// new item, New* is zero for a delete; a product switch undoes the old
// product's effect and applies the full new quantity to the new product.
type ItemDelta struct {
	Kind           MovementKind
	OldProductID   int64
	OldQuantity    decimal.Decimal
	NewProductID   int64
	NewQuantity    decimal.Decimal
	UnitPrice      decimal.Decimal
	CounterpartyID *int64
	InvoiceRef     string
	Description    string
	ActorID        int64
}

// ReviseInput is a direct product edit. Nil fields are left untouched; any
// actual value change requires a movement kind.
type ReviseInput struct {
	ProductID   int64
	Kind        MovementKind
	Quantity    *decimal.Decimal
	Cost        *decimal.Decimal
	Price       *decimal.Decimal
	Description string
	ActorID     int64
}

// StockCardFilter filters movement listings for one product.
type StockCardFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// ErrStockNotFound indicates the product has no stock row, i.e. the product
// does not exist.
var ErrStockNotFound = errors.New("inventory: product stock not found")

// ErrNegativeStock is returned when a movement would drive quantity below
// zero and negative stock is not allowed.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// movementSign returns the quantity multiplier for kind.
func movementSign(kind MovementKind, negative bool) (decimal.Decimal, bool) {
	one := decimal.NewFromInt(1)
	switch kind {
	case MovementPurchase, MovementRefund:
		return one, true
	case MovementSale:
		return one.Neg(), true
	case MovementAdjustment, MovementMiscellaneous:
		if negative {
			return one.Neg(), true
		}
		return one, true
	}
	return decimal.Zero, false
}
