package customers

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the counterparty aggregate on the receivable side. Balance and
// receivable are maintained by ledger writes, never by the CRUD layer.
type Customer struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Receivable     decimal.Decimal `json:"receivable"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
