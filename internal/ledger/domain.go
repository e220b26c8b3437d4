package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// CounterpartyKind distinguishes the two counterparty ledgers.
type CounterpartyKind string

const (
	// KindCustomer selects the customer ledger.
	KindCustomer CounterpartyKind = "customer"
	// KindSupplier selects the supplier ledger.
	KindSupplier CounterpartyKind = "supplier"
)

// TxKind enumerates counterparty transaction kinds.
type TxKind string

const (
	// TxSale is the originating entry for a customer sale.
	TxSale TxKind = "sale"
	// TxPurchase is the originating entry for a supplier purchase.
	TxPurchase TxKind = "purchase"
	// TxPayment settles part of a receivable or debt in cash.
	TxPayment TxKind = "payment"
	// TxRefund reverses cash for a prior sale or purchase.
	TxRefund TxKind = "refund"
	// TxAdjustment corrects a balance outside the normal flows.
	TxAdjustment TxKind = "adjustment"
)

// Direction of a main-account entry. Credit increases the global balance,
// debit decreases it.
type Direction string

const (
	// Debit decreases the main-account balance.
	Debit Direction = "debit"
	// Credit increases the main-account balance.
	Credit Direction = "credit"
)

// SourceType tags the origin of a main-account entry.
type SourceType string

const (
	SourceSupplier       SourceType = "supplier"
	SourceCustomer       SourceType = "customer"
	SourceExpense        SourceType = "expense"
	SourceSupplierRefund SourceType = "supplier_refund"
	SourceCustomerRefund SourceType = "customer_refund"
	SourceAdjustment     SourceType = "adjustment"
	SourceOther          SourceType = "other"
)

// CounterpartyTransaction is one immutable entry in a customer or supplier
// ledger. BalanceAfter is the counterparty running balance immediately after
// this entry; corrections are new entries, never edits.
type CounterpartyTransaction struct {
	ID             int64            `json:"id"`
	CounterpartyID int64            `json:"counterpartyId"`
	Counterparty   CounterpartyKind `json:"counterparty"`
	Kind           TxKind           `json:"kind"`
	Amount         decimal.Decimal  `json:"amount"`
	BalanceAfter   decimal.Decimal  `json:"balanceAfter"`
	ReferenceID    *int64           `json:"referenceId,omitempty"`
	Description    string           `json:"description,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// MainAccountTransaction is one immutable entry in the global cash ledger.
// BalanceAfter is the only source of truth for how much cash the business
// holds.
type MainAccountTransaction struct {
	ID           int64           `json:"id"`
	Direction    Direction       `json:"direction"`
	SourceType   SourceType      `json:"sourceType"`
	SourceID     int64           `json:"sourceId,omitempty"`
	ReferenceID  *int64          `json:"referenceId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CustomerBalance is the denormalised summary row for a customer. It is
// mutated only in the same atomic unit as the ledger write.
type CustomerBalance struct {
	CustomerID     int64           `json:"customerId"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Receivable     decimal.Decimal `json:"receivable"`
}

// SupplierBalance is the denormalised summary row for a supplier. Debt tracks
// purchase-only liability and moves separately from the cash balance.
type SupplierBalance struct {
	SupplierID     int64           `json:"supplierId"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Debt           decimal.Decimal `json:"debt"`
}

// CounterpartyTransactionInput is the typed argument for recording a
// counterparty ledger event.
type CounterpartyTransactionInput struct {
	CounterpartyID int64
	Kind           TxKind
	Amount         decimal.Decimal
	ReferenceID    *int64
	Description    string
	ActorID        int64
}

// ExpenseKind selects the direction of an expense event.
type ExpenseKind string

const (
	// ExpenseOrdinary is a cash outflow.
	ExpenseOrdinary ExpenseKind = "ordinary"
	// ExpenseAdjustment is a refund-like inflow against expenses.
	ExpenseAdjustment ExpenseKind = "adjustment"
)

// ExpenseInput records a main-account-only event.
type ExpenseInput struct {
	Kind        ExpenseKind
	Amount      decimal.Decimal
	SourceID    int64
	Description string
	ActorID     int64
}

// StatementFilter selects main-account entries. Zero From/To default to the
// current calendar month.
type StatementFilter struct {
	From      time.Time
	To        time.Time
	Limit     int
	Ascending bool
}

// Statement is the read model for the main-account listing.
type Statement struct {
	Transactions []MainAccountTransaction `json:"transactions"`
	TotalBalance decimal.Decimal          `json:"totalBalance"`
}

// effect captures how a transaction kind moves the counterparty balance, the
// secondary column (receivable or debt) and the main account.
type effect struct {
	balanceSign   int
	secondarySign int
	floorsAtZero  bool
	mainDirection Direction
	mainSource    SourceType
}

// customerEffects implements the customer sign table. Sale entries have no
// main-account counterpart: cash has not moved, only the receivable has.
var customerEffects = map[TxKind]effect{
	TxSale:       {balanceSign: +1, secondarySign: +1},
	TxPayment:    {balanceSign: -1, secondarySign: -1, mainDirection: Credit, mainSource: SourceCustomer},
	TxRefund:     {balanceSign: -1, secondarySign: -1, mainDirection: Debit, mainSource: SourceCustomerRefund},
	TxAdjustment: {balanceSign: +1, secondarySign: +1, mainDirection: Debit, mainSource: SourceAdjustment},
}

// supplierEffects implements the supplier sign table. Debt floors at zero on
// payment and is untouched by refunds and adjustments.
var supplierEffects = map[TxKind]effect{
	TxPurchase:   {balanceSign: -1, secondarySign: +1},
	TxPayment:    {balanceSign: +1, secondarySign: -1, floorsAtZero: true, mainDirection: Debit, mainSource: SourceSupplier},
	TxRefund:     {balanceSign: +1, mainDirection: Credit, mainSource: SourceSupplierRefund},
	TxAdjustment: {balanceSign: +1, mainDirection: Credit, mainSource: SourceAdjustment},
}

// effectFor resolves the sign-convention entry for kind on the given ledger.
func effectFor(counterparty CounterpartyKind, kind TxKind) (effect, bool) {
	switch counterparty {
	case KindCustomer:
		eff, ok := customerEffects[kind]
		return eff, ok
	case KindSupplier:
		eff, ok := supplierEffects[kind]
		return eff, ok
	}
	return effect{}, false
}

// apply returns the signed delta for a non-negative amount.
func applySign(sign int, amount decimal.Decimal) decimal.Decimal {
	switch sign {
	case +1:
		return amount
	case -1:
		return amount.Neg()
	}
	return decimal.Zero
}
