package suppliers

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supplier is the counterparty aggregate on the debt side. Balance and
// debt are maintained by ledger writes, never by the CRUD layer.
type Supplier struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Debt           decimal.Decimal `json:"debt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
