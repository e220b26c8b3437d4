package sales

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

// ErrSaleNotFound indicates the invoice or line does not exist.
var ErrSaleNotFound = errors.New("sales: sale not found")

// RepositoryPort persists invoice headers and lines. Mutating calls that take
// a total update header and line in one transaction.
type RepositoryPort interface {
	CreateSale(ctx context.Context, sale Sale, items []SaleItem) (Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error)
	GetItem(ctx context.Context, saleID, itemID int64) (SaleItem, error)
	ListItems(ctx context.Context, saleID int64) ([]SaleItem, error)
	InsertItem(ctx context.Context, item SaleItem, total decimal.Decimal) (SaleItem, error)
	UpdateItem(ctx context.Context, item SaleItem, total decimal.Decimal) error
	DeleteItem(ctx context.Context, saleID, itemID int64, total decimal.Decimal) error
	AddPaid(ctx context.Context, id int64, amount decimal.Decimal) (Sale, error)
}

// LedgerPort records the customer-side entries an invoice produces.
type LedgerPort interface {
	RecordCustomerTransaction(ctx context.Context, input ledger.CounterpartyTransactionInput) (ledger.CounterpartyTransaction, error)
}

// StockPort applies the stock effect of invoice lines.
type StockPort interface {
	ApplyItemDelta(ctx context.Context, input inventory.ItemDelta) ([]inventory.StockMovement, error)
}

// Service orchestrates the invoice fan-out: header rows, customer ledger
// entries and stock movements. The ledger and stock writes are each atomic on
// their own; the service reverses applied effects when a later step fails.
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

// Create writes the invoice header and lines, moves stock out for every line
// and records the originating sale entry on the customer ledger. Cash has not
// moved yet, so the main account is untouched.
func (s *Service) Create(ctx context.Context, input CreateInput) (Sale, []SaleItem, error) {
	if input.CustomerID == 0 {
		return Sale{}, nil, shared.InvalidArgumentf("customer required")
	}
	if input.InvoiceNo == "" {
		return Sale{}, nil, shared.InvalidArgumentf("invoice number required")
	}
	if len(input.Items) == 0 {
		return Sale{}, nil, shared.InvalidArgumentf("at least one item required")
	}
	items := make([]SaleItem, 0, len(input.Items))
	total := decimal.Zero
	for _, it := range input.Items {
		if err := validateItem(it); err != nil {
			return Sale{}, nil, err
		}
		line := SaleItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Total: it.Quantity.Mul(it.UnitPrice)}
		items = append(items, line)
		total = total.Add(line.Total)
	}

	sale, err := s.repo.CreateSale(ctx, Sale{
		InvoiceNo:   input.InvoiceNo,
		CustomerID:  input.CustomerID,
		Status:      StatusUnpaid,
		Total:       total,
		Paid:        decimal.Zero,
		Description: input.Description,
	}, items)
	if err != nil {
		return Sale{}, nil, s.mapError(err)
	}

	applied := 0
	for _, line := range items {
		if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(sale, 0, decimal.Zero, line.ProductID, line.Quantity, line.UnitPrice, input.ActorID)); err != nil {
			s.unwind(ctx, sale, items[:applied], input.ActorID)
			return Sale{}, nil, err
		}
		applied++
	}

	if _, err := s.ledger.RecordCustomerTransaction(ctx, ledger.CounterpartyTransactionInput{
		CounterpartyID: input.CustomerID,
		Kind:           ledger.TxSale,
		Amount:         total,
		ReferenceID:    &sale.ID,
		Description:    fmt.Sprintf("sale %s", sale.InvoiceNo),
		ActorID:        input.ActorID,
	}); err != nil {
		s.unwind(ctx, sale, items[:applied], input.ActorID)
		return Sale{}, nil, err
	}

	stored, err := s.repo.ListItems(ctx, sale.ID)
	if err != nil {
		return Sale{}, nil, s.mapError(err)
	}
	return sale, stored, nil
}

// AddItem appends a line, moving its quantity out of stock and raising the
// invoice total.
func (s *Service) AddItem(ctx context.Context, saleID int64, input ItemInput, actorID int64) (SaleItem, error) {
	if err := validateItem(input); err != nil {
		return SaleItem{}, err
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return SaleItem{}, s.mapError(err)
	}

	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(sale, 0, decimal.Zero, input.ProductID, input.Quantity, input.UnitPrice, actorID)); err != nil {
		return SaleItem{}, err
	}

	line := SaleItem{
		SaleID:    sale.ID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPrice,
		Total:     input.Quantity.Mul(input.UnitPrice),
	}
	stored, err := s.repo.InsertItem(ctx, line, sale.Total.Add(line.Total))
	if err != nil {
		s.reverseDelta(ctx, sale, input.ProductID, input.Quantity, input.UnitPrice, actorID)
		return SaleItem{}, s.mapError(err)
	}
	return stored, nil
}

// UpdateItem revises a line. Same-product edits apply only the quantity
// difference to stock; switching product restores the old product fully.
func (s *Service) UpdateItem(ctx context.Context, saleID, itemID int64, input ItemInput, actorID int64) (SaleItem, error) {
	if err := validateItem(input); err != nil {
		return SaleItem{}, err
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return SaleItem{}, s.mapError(err)
	}
	old, err := s.repo.GetItem(ctx, saleID, itemID)
	if err != nil {
		return SaleItem{}, s.mapError(err)
	}

	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(sale, old.ProductID, old.Quantity, input.ProductID, input.Quantity, input.UnitPrice, actorID)); err != nil {
		return SaleItem{}, err
	}

	updated := old
	updated.ProductID = input.ProductID
	updated.Quantity = input.Quantity
	updated.UnitPrice = input.UnitPrice
	updated.Total = input.Quantity.Mul(input.UnitPrice)
	total := sale.Total.Sub(old.Total).Add(updated.Total)
	if err := s.repo.UpdateItem(ctx, updated, total); err != nil {
		// Put the stock effect back the way it was.
		if _, rerr := s.stock.ApplyItemDelta(ctx, s.itemDelta(sale, input.ProductID, input.Quantity, old.ProductID, old.Quantity, old.UnitPrice, actorID)); rerr != nil {
			s.logger.Error("reverse item delta after failed update", slog.Int64("sale_id", saleID), slog.Any("error", rerr))
		}
		return SaleItem{}, s.mapError(err)
	}
	return updated, nil
}

// DeleteItem removes a line and restores its quantity to stock.
func (s *Service) DeleteItem(ctx context.Context, saleID, itemID, actorID int64) error {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return s.mapError(err)
	}
	old, err := s.repo.GetItem(ctx, saleID, itemID)
	if err != nil {
		return s.mapError(err)
	}

	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(sale, old.ProductID, old.Quantity, 0, decimal.Zero, old.UnitPrice, actorID)); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, saleID, itemID, sale.Total.Sub(old.Total)); err != nil {
		s.reverseDelta(ctx, sale, old.ProductID, old.Quantity, old.UnitPrice, actorID)
		return s.mapError(err)
	}
	return nil
}

// RecordPayment registers cash received against the invoice: a payment entry
// on the customer ledger (which credits the main account) plus the header's
// paid amount and status.
func (s *Service) RecordPayment(ctx context.Context, saleID int64, amount decimal.Decimal, description string, actorID int64) (Sale, error) {
	if !amount.IsPositive() {
		return Sale{}, shared.InvalidArgumentf("amount must be greater than zero")
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return Sale{}, s.mapError(err)
	}
	if description == "" {
		description = fmt.Sprintf("payment for sale %s", sale.InvoiceNo)
	}

	if _, err := s.ledger.RecordCustomerTransaction(ctx, ledger.CounterpartyTransactionInput{
		CounterpartyID: sale.CustomerID,
		Kind:           ledger.TxPayment,
		Amount:         amount,
		ReferenceID:    &sale.ID,
		Description:    description,
		ActorID:        actorID,
	}); err != nil {
		return Sale{}, err
	}

	// The increment happens in the store so concurrent payments cannot
	// overwrite each other's running total.
	updated, err := s.repo.AddPaid(ctx, sale.ID, amount)
	if err != nil {
		return Sale{}, s.mapError(err)
	}
	return updated, nil
}

// Get returns the header with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Sale, []SaleItem, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return Sale{}, nil, s.mapError(err)
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return Sale{}, nil, s.mapError(err)
	}
	return sale, items, nil
}

// List pages through invoices.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error) {
	list, page, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, s.mapError(err)
	}
	return list, page, nil
}

// itemDelta builds the stock delta for a line change on this invoice.
func (s *Service) itemDelta(sale Sale, oldProduct int64, oldQty decimal.Decimal, newProduct int64, newQty, unitPrice decimal.Decimal, actorID int64) inventory.ItemDelta {
	customerID := sale.CustomerID
	return inventory.ItemDelta{
		Kind:           inventory.MovementSale,
		OldProductID:   oldProduct,
		OldQuantity:    oldQty,
		NewProductID:   newProduct,
		NewQuantity:    newQty,
		UnitPrice:      unitPrice,
		CounterpartyID: &customerID,
		InvoiceRef:     sale.InvoiceNo,
		ActorID:        actorID,
	}
}

// unwind reverses already-applied stock deltas and drops the header after a
// failed create.
func (s *Service) unwind(ctx context.Context, sale Sale, applied []SaleItem, actorID int64) {
	for _, line := range applied {
		s.reverseDelta(ctx, sale, line.ProductID, line.Quantity, line.UnitPrice, actorID)
	}
	if err := s.repo.DeleteSale(ctx, sale.ID); err != nil {
		s.logger.Error("drop sale after failed create", slog.Int64("sale_id", sale.ID), slog.Any("error", err))
	}
}

func (s *Service) reverseDelta(ctx context.Context, sale Sale, productID int64, qty, unitPrice decimal.Decimal, actorID int64) {
	if _, err := s.stock.ApplyItemDelta(ctx, s.itemDelta(sale, productID, qty, 0, decimal.Zero, unitPrice, actorID)); err != nil {
		s.logger.Error("reverse item delta", slog.Int64("sale_id", sale.ID), slog.Int64("product_id", productID), slog.Any("error", err))
	}
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, ErrSaleNotFound):
		return shared.NewError(shared.CodeNotFound, err, "sale not found")
	default:
		var coded *shared.Error
		if errors.As(err, &coded) {
			return err
		}
		return shared.Internal(err, "sale write failed")
	}
}

func validateItem(input ItemInput) error {
	if input.ProductID == 0 {
		return shared.InvalidArgumentf("product required")
	}
	if !input.Quantity.IsPositive() {
		return shared.InvalidArgumentf("quantity must be greater than zero")
	}
	if input.UnitPrice.IsNegative() {
		return shared.InvalidArgumentf("unit price must not be negative")
	}
	return nil
}
