package purchases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/inventory"
	"github.com/warungbooks/warungbooks/internal/ledger"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// ErrPurchaseNotFound indicates the purchase or line does not exist.
var ErrPurchaseNotFound = errors.New("purchases: purchase not found")

// RepositoryPort persists purchase headers and lines.
type RepositoryPort interface {
	CreatePurchase(ctx context.Context, purchase Purchase, items []PurchaseItem) (Purchase, error)
	DeletePurchase(ctx context.Context, id int64) error
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, shared.Pagination, error)
	GetItem(ctx context.Context, purchaseID, itemID int64) (PurchaseItem, error)
	ListItems(ctx context.Context, purchaseID int64) ([]PurchaseItem, error)
	InsertItem(ctx context.Context, item PurchaseItem, total decimal.Decimal) (PurchaseItem, error)
	UpdateItem(ctx context.Context, item PurchaseItem, total decimal.Decimal) error
	DeleteItem(ctx context.Context, purchaseID, itemID int64, total decimal.Decimal) error
	AddPaid(ctx context.Context, id int64, amount decimal.Decimal) (Purchase, error)
}

// LedgerPort records the supplier-side entries a purchase produces.
type LedgerPort interface {
	RecordSupplierTransaction(ctx context.Context, input ledger.CounterpartyTransactionInput) (ledger.CounterpartyTransaction, error)
}

// StockPort applies the stock effect of purchase lines.
type StockPort interface {
	ApplyItemDelta(ctx context.Context, input inventory.ItemDelta) ([]inventory.StockMovement, error)
}

// Service orchestrates the purchase fan-out: header rows, supplier ledger
// entries and inbound stock movements.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	ledger LedgerPort
	stock  StockPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, ledgerPort LedgerPort, stock StockPort) *Service {
	return &Service{logger: logger, repo: repo, ledger: ledgerPort, stock: stock}
}

// Create writes the purchase header and lines, moves stock in per line and
// records the originating purchase entry on the supplier ledger. The main
// account is untouched until a payment is made.
func (s *Service) Create(ctx context.Context, input CreateInput) (Purchase, []PurchaseItem, error) {
	if input.SupplierID == 0 {
		return Purchase{}, nil, shared.InvalidArgumentf("supplier required")
	}
	if input.InvoiceNo == "" {
		return Purchase{}, nil, shared.InvalidArgumentf("invoice number required")
	}
	if len(input.Items) == 0 {
		return Purchase{}, nil, shared.InvalidArgumentf("at least one item required")
	}
	items := make([]PurchaseItem, 0, len(input.Items))
	total := decimal.Zero
	for _, it := range input.Items {
		if err := validateItem(it); err != nil {
			return Purchase{}, nil, err
		}
		line := PurchaseItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitCost: it.UnitCost, Total: it.Quantity.Mul(it.UnitCost)}
		items = append(items, line)
		total = total.Add(line.Total)
	}

	purchase, err := s.repo.CreatePurchase(ctx, Purchase{
		InvoiceNo:   input.InvoiceNo,
		SupplierID:  input.SupplierID,
		Status:      StatusUnpaid,
		Total:       total,
		Paid:        decimal.Zero,
		Description: input.Description,
	}, items)
	if err != nil {
		return Purchase{}, nil, s.mapError(err)
	}

	applied := 0
	for _, line := range items {
		if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(purchase, 0, decimal.Zero, line.ProductID, line.Quantity, line.UnitCost, input.ActorID)); err != nil {
			s.unwind(ctx, purchase, items[:applied], input.ActorID)
			return Purchase{}, nil, err
		}
		applied++
	}

	if _, err := s.ledger.RecordSupplierTransaction(ctx, ledger.CounterpartyTransactionInput{
		CounterpartyID: input.SupplierID,
		Kind:           ledger.TxPurchase,
		Amount:         total,
		ReferenceID:    &purchase.ID,
		Description:    fmt.Sprintf("purchase %s", purchase.InvoiceNo),
		ActorID:        input.ActorID,
	}); err != nil {
		s.unwind(ctx, purchase, items[:applied], input.ActorID)
		return Purchase{}, nil, err
	}

	stored, err := s.repo.ListItems(ctx, purchase.ID)
	if err != nil {
		return Purchase{}, nil, s.mapError(err)
	}
	return purchase, stored, nil
}

// AddItem appends a line, moving its quantity into stock at the given unit
// cost and raising the purchase total.
func (s *Service) AddItem(ctx context.Context, purchaseID int64, input ItemInput, actorID int64) (PurchaseItem, error) {
	if err := validateItem(input); err != nil {
		return PurchaseItem{}, err
	}
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return PurchaseItem{}, s.mapError(err)
	}

	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(purchase, 0, decimal.Zero, input.ProductID, input.Quantity, input.UnitCost, actorID)); err != nil {
		return PurchaseItem{}, err
	}

	line := PurchaseItem{
		PurchaseID: purchase.ID,
		ProductID:  input.ProductID,
		Quantity:   input.Quantity,
		UnitCost:   input.UnitCost,
		Total:      input.Quantity.Mul(input.UnitCost),
	}
	stored, err := s.repo.InsertItem(ctx, line, purchase.Total.Add(line.Total))
	if err != nil {
		s.reverseDelta(ctx, purchase, input.ProductID, input.Quantity, input.UnitCost, actorID)
		return PurchaseItem{}, s.mapError(err)
	}
	return stored, nil
}

// UpdateItem revises a line. The stock delta reconciles quantity; a changed
// unit cost flows into the weighted average through the inbound movement.
func (s *Service) UpdateItem(ctx context.Context, purchaseID, itemID int64, input ItemInput, actorID int64) (PurchaseItem, error) {
	if err := validateItem(input); err != nil {
		return PurchaseItem{}, err
	}
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return PurchaseItem{}, s.mapError(err)
	}
	old, err := s.repo.GetItem(ctx, purchaseID, itemID)
	if err != nil {
		return PurchaseItem{}, s.mapError(err)
	}

	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(purchase, old.ProductID, old.Quantity, input.ProductID, input.Quantity, input.UnitCost, actorID)); err != nil {
		return PurchaseItem{}, err
	}

	updated := old
	updated.ProductID = input.ProductID
	updated.Quantity = input.Quantity
	updated.UnitCost = input.UnitCost
	updated.Total = input.Quantity.Mul(input.UnitCost)
	total := purchase.Total.Sub(old.Total).Add(updated.Total)
	if err := s.repo.UpdateItem(ctx, updated, total); err != nil {
		if _, rerr := s.stock.ApplyItemDelta(ctx, s.itemDelta(purchase, input.ProductID, input.Quantity, old.ProductID, old.Quantity, old.UnitCost, actorID)); rerr != nil {
			s.logger.Error("reverse item delta after failed update", slog.Int64("purchase_id", purchaseID), slog.Any("error", rerr))
		}
		return PurchaseItem{}, s.mapError(err)
	}
	return updated, nil
}

// DeleteItem removes a line and takes its quantity back out of stock.
func (s *Service) DeleteItem(ctx context.Context, purchaseID, itemID, actorID int64) error {
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return s.mapError(err)
	}
	old, err := s.repo.GetItem(ctx, purchaseID, itemID)
	if err != nil {
		return s.mapError(err)
	}

	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(purchase, old.ProductID, old.Quantity, 0, decimal.Zero, old.UnitCost, actorID)); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, purchaseID, itemID, purchase.Total.Sub(old.Total)); err != nil {
		s.reverseDelta(ctx, purchase, old.ProductID, old.Quantity, old.UnitCost, actorID)
		return s.mapError(err)
	}
	return nil
}

// RecordPayment registers cash sent against the purchase: a payment entry on
// the supplier ledger (which debits the main account) plus the header's paid
// amount and status.
func (s *Service) RecordPayment(ctx context.Context, purchaseID int64, amount decimal.Decimal, description string, actorID int64) (Purchase, error) {
	if !amount.IsPositive() {
		return Purchase{}, shared.InvalidArgumentf("amount must be greater than zero")
	}
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return Purchase{}, s.mapError(err)
	}
	if description == "" {
		description = fmt.Sprintf("payment for purchase %s", purchase.InvoiceNo)
	}

	if _, err := s.ledger.RecordSupplierTransaction(ctx, ledger.CounterpartyTransactionInput{
		CounterpartyID: purchase.SupplierID,
		Kind:           ledger.TxPayment,
		Amount:         amount,
		ReferenceID:    &purchase.ID,
		Description:    description,
		ActorID:        actorID,
	}); err != nil {
		return Purchase{}, err
	}

	// The increment happens in the store so concurrent payments cannot
	// overwrite each other's running total.
	updated, err := s.repo.AddPaid(ctx, purchase.ID, amount)
	if err != nil {
		return Purchase{}, s.mapError(err)
	}
	return updated, nil
}

// Get returns the header with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, []PurchaseItem, error) {
	purchase, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return Purchase{}, nil, s.mapError(err)
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return Purchase{}, nil, s.mapError(err)
	}
	return purchase, items, nil
}

// List pages through purchases.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Purchase, shared.Pagination, error) {
	list, page, err := s.repo.ListPurchases(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, s.mapError(err)
	}
	return list, page, nil
}

func (s *Service) itemDelta(purchase Purchase, oldProduct int64, oldQty decimal.Decimal, newProduct int64, newQty, unitCost decimal.Decimal, actorID int64) inventory.ItemDelta {
	supplierID := purchase.SupplierID
	return inventory.ItemDelta{
		Kind:           inventory.MovementPurchase,
		OldProductID:   oldProduct,
		OldQuantity:    oldQty,
		NewProductID:   newProduct,
		NewQuantity:    newQty,
		UnitPrice:      unitCost,
		CounterpartyID: &supplierID,
		InvoiceRef:     purchase.InvoiceNo,
		ActorID:        actorID,
	}
}

func (s *Service) unwind(ctx context.Context, purchase Purchase, applied []PurchaseItem, actorID int64) {
	for _, line := range applied {
		s.reverseDelta(ctx, purchase, line.ProductID, line.Quantity, line.UnitCost, actorID)
	}
	if err := s.repo.DeletePurchase(ctx, purchase.ID); err != nil {
		s.logger.Error("drop purchase after failed create", slog.Int64("purchase_id", purchase.ID), slog.Any("error", err))
	}
}

func (s *Service) reverseDelta(ctx context.Context, purchase Purchase, productID int64, qty, unitCost decimal.Decimal, actorID int64) {
	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(purchase, productID, qty, 0, decimal.Zero, unitCost, actorID)); err != nil {
		s.logger.Error("reverse item delta", slog.Int64("purchase_id", purchase.ID), slog.Int64("product_id", productID), slog.Any("error", err))
	}
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, ErrPurchaseNotFound):
		return shared.NewError(shared.CodeNotFound, err, "purchase not found")
	default:
		var coded *shared.Error
		if errors.As(err, &coded) {
			return err
		}
		return shared.Internal(err, "purchase write failed")
	}
}

func validateItem(input ItemInput) error {
	if input.ProductID == 0 {
		return shared.InvalidArgumentf("product required")
	}
	if !input.Quantity.IsPositive() {
		return shared.InvalidArgumentf("quantity must be greater than zero")
	}
	if input.UnitCost.IsNegative() {
		return shared.InvalidArgumentf("unit cost must not be negative")
	}
	return nil
}
