package purchases

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warungbooks/warungbooks/internal/inventory"
	"github.com/warungbooks/warungbooks/internal/ledger"
	"github.com/warungbooks/warungbooks/internal/shared"
)

type purchaseRepo struct {
	mu        sync.Mutex
	purchases map[int64]Purchase
	items     map[int64]PurchaseItem
	nextID    int64
	nextItem  int64
}

func newPurchaseRepo() *purchaseRepo {
	return &purchaseRepo{purchases: map[int64]Purchase{}, items: map[int64]PurchaseItem{}}
}

func (r *purchaseRepo) CreatePurchase(ctx context.Context, purchase Purchase, items []PurchaseItem) (Purchase, error) {
	r.nextID++
	purchase.ID = r.nextID
	purchase.CreatedAt = time.Now().UTC()
	purchase.UpdatedAt = purchase.CreatedAt
	r.purchases[purchase.ID] = purchase
	for _, item := range items {
		r.nextItem++
		item.ID = r.nextItem
		item.PurchaseID = purchase.ID
		r.items[item.ID] = item
	}
	return purchase, nil
}

func (r *purchaseRepo) DeletePurchase(ctx context.Context, id int64) error {
	delete(r.purchases, id)
	for itemID, item := range r.items {
		if item.PurchaseID == id {
			delete(r.items, itemID)
		}
	}
	return nil
}

func (r *purchaseRepo) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	purchase, ok := r.purchases[id]
	if !ok {
		return Purchase{}, ErrPurchaseNotFound
	}
	return purchase, nil
}

func (r *purchaseRepo) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, shared.Pagination, error) {
	var list []Purchase
	for _, purchase := range r.purchases {
		if filter.SupplierID == 0 || purchase.SupplierID == filter.SupplierID {
			list = append(list, purchase)
		}
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, len(list)), nil
}

func (r *purchaseRepo) GetItem(ctx context.Context, purchaseID, itemID int64) (PurchaseItem, error) {
	item, ok := r.items[itemID]
	if !ok || item.PurchaseID != purchaseID {
		return PurchaseItem{}, ErrPurchaseNotFound
	}
	return item, nil
}

func (r *purchaseRepo) ListItems(ctx context.Context, purchaseID int64) ([]PurchaseItem, error) {
	var items []PurchaseItem
	for id := int64(1); id <= r.nextItem; id++ {
		if item, ok := r.items[id]; ok && item.PurchaseID == purchaseID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (r *purchaseRepo) InsertItem(ctx context.Context, item PurchaseItem, total decimal.Decimal) (PurchaseItem, error) {
	r.nextItem++
	item.ID = r.nextItem
	r.items[item.ID] = item
	r.setTotal(item.PurchaseID, total)
	return item, nil
}

func (r *purchaseRepo) UpdateItem(ctx context.Context, item PurchaseItem, total decimal.Decimal) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrPurchaseNotFound
	}
	r.items[item.ID] = item
	r.setTotal(item.PurchaseID, total)
	return nil
}

func (r *purchaseRepo) DeleteItem(ctx context.Context, purchaseID, itemID int64, total decimal.Decimal) error {
	if _, ok := r.items[itemID]; !ok {
		return ErrPurchaseNotFound
	}
	delete(r.items, itemID)
	r.setTotal(purchaseID, total)
	return nil
}

func (r *purchaseRepo) AddPaid(ctx context.Context, id int64, amount decimal.Decimal) (Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	purchase, ok := r.purchases[id]
	if !ok {
		return Purchase{}, ErrPurchaseNotFound
	}
	purchase.Paid = purchase.Paid.Add(amount)
	purchase.Status = statusFor(purchase.Total, purchase.Paid)
	r.purchases[id] = purchase
	return purchase, nil
}

func (r *purchaseRepo) setTotal(purchaseID int64, total decimal.Decimal) {
	purchase := r.purchases[purchaseID]
	purchase.Total = total
	r.purchases[purchaseID] = purchase
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []ledger.CounterpartyTransactionInput
	fail    error
}

func (l *fakeLedger) RecordSupplierTransaction(ctx context.Context, input ledger.CounterpartyTransactionInput) (ledger.CounterpartyTransaction, error) {
	if l.fail != nil {
		return ledger.CounterpartyTransaction{}, l.fail
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, input)
	return ledger.CounterpartyTransaction{ID: int64(len(l.entries)), Amount: input.Amount}, nil
}

type fakeStock struct {
	deltas []inventory.ItemDelta
	fail   error
}

func (s *fakeStock) ApplyItemDelta(ctx context.Context, input inventory.ItemDelta) ([]inventory.StockMovement, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.deltas = append(s.deltas, input)
	return []inventory.StockMovement{{}}, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreatePurchase(t *testing.T) {
	repo := newPurchaseRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := NewService(slog.Default(), repo, lp, sp)

	purchase, items, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 5,
		InvoiceNo:  "PO-1",
		Items: []ItemInput{
			{ProductID: 1, Quantity: dec("10"), UnitCost: dec("5")},
			{ProductID: 2, Quantity: dec("4"), UnitCost: dec("12.50")},
		},
	})
	require.NoError(t, err)
	require.True(t, purchase.Total.Equal(dec("100")))
	require.Len(t, items, 2)

	// Inbound deltas carry the unit cost for the average recompute.
	require.Len(t, sp.deltas, 2)
	require.Equal(t, inventory.MovementPurchase, sp.deltas[0].Kind)
	require.True(t, sp.deltas[0].UnitPrice.Equal(dec("5")))
	require.True(t, sp.deltas[0].NewQuantity.Equal(dec("10")))

	require.Len(t, lp.entries, 1)
	require.Equal(t, ledger.TxPurchase, lp.entries[0].Kind)
	require.True(t, lp.entries[0].Amount.Equal(dec("100")))
	require.Equal(t, purchase.ID, *lp.entries[0].ReferenceID)
}

func TestCreatePurchaseStockFailureUnwinds(t *testing.T) {
	repo := newPurchaseRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{fail: shared.NotFoundf("product not found")}
	svc := NewService(slog.Default(), repo, lp, sp)

	_, _, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 5,
		InvoiceNo:  "PO-2",
		Items:      []ItemInput{{ProductID: 99, Quantity: dec("1"), UnitCost: dec("5")}},
	})
	require.Error(t, err)
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
	require.Empty(t, repo.purchases)
	require.Empty(t, lp.entries)
}

func TestPurchaseItemDeleteTakesStockBack(t *testing.T) {
	repo := newPurchaseRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := NewService(slog.Default(), repo, lp, sp)
	ctx := context.Background()

	purchase, items, err := svc.Create(ctx, CreateInput{
		SupplierID: 5,
		InvoiceNo:  "PO-3",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("10"), UnitCost: dec("5")}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteItem(ctx, purchase.ID, items[0].ID, 0))
	last := sp.deltas[len(sp.deltas)-1]
	require.Equal(t, int64(1), last.OldProductID)
	require.True(t, last.OldQuantity.Equal(dec("10")))
	require.Zero(t, last.NewProductID)
	require.True(t, repo.purchases[purchase.ID].Total.IsZero())
}

func TestPurchasePayment(t *testing.T) {
	repo := newPurchaseRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := NewService(slog.Default(), repo, lp, sp)
	ctx := context.Background()

	purchase, _, err := svc.Create(ctx, CreateInput{
		SupplierID: 5,
		InvoiceNo:  "PO-4",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("10"), UnitCost: dec("20")}},
	})
	require.NoError(t, err)

	updated, err := svc.RecordPayment(ctx, purchase.ID, dec("200"), "", 0)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)
	require.Equal(t, ledger.TxPayment, lp.entries[len(lp.entries)-1].Kind)
}

func TestConcurrentPurchasePaymentsAccumulate(t *testing.T) {
	repo := newPurchaseRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := NewService(slog.Default(), repo, lp, sp)
	ctx := context.Background()

	purchase, _, err := svc.Create(ctx, CreateInput{
		SupplierID: 5,
		InvoiceNo:  "PO-9",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("10"), UnitCost: dec("10")}},
	})
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := svc.RecordPayment(ctx, purchase.ID, dec("40"), "", 0)
			return err
		})
	}
	require.NoError(t, g.Wait())

	stored, err := repo.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	require.True(t, stored.Paid.Equal(dec("80")), "paid = %s", stored.Paid)
	require.Equal(t, StatusPartial, stored.Status)
	require.Len(t, lp.entries, 3) // invoice entry plus the two payments
}
