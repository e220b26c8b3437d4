package sales

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

type saleRepo struct {
	mu         sync.Mutex
	sales      map[int64]Sale
	items      map[int64]SaleItem
	nextSale   int64
	nextItem   int64
	failInsert error
}

func newSaleRepo() *saleRepo {
	return &saleRepo{sales: map[int64]Sale{}, items: map[int64]SaleItem{}}
}

func (r *saleRepo) CreateSale(ctx context.Context, sale Sale, items []SaleItem) (Sale, error) {
	r.nextSale++
	sale.ID = r.nextSale
	sale.CreatedAt = time.Now().UTC()
	sale.UpdatedAt = sale.CreatedAt
	r.sales[sale.ID] = sale
	for _, item := range items {
		r.nextItem++
		item.ID = r.nextItem
		item.SaleID = sale.ID
		r.items[item.ID] = item
	}
	return sale, nil
}

func (r *saleRepo) DeleteSale(ctx context.Context, id int64) error {
	delete(r.sales, id)
	for itemID, item := range r.items {
		if item.SaleID == id {
			delete(r.items, itemID)
		}
	}
	return nil
}

func (r *saleRepo) GetSale(ctx context.Context, id int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return sale, nil
}

func (r *saleRepo) ListSales(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error) {
	var list []Sale
	for _, sale := range r.sales {
		if filter.CustomerID == 0 || sale.CustomerID == filter.CustomerID {
			list = append(list, sale)
		}
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, len(list)), nil
}

func (r *saleRepo) GetItem(ctx context.Context, saleID, itemID int64) (SaleItem, error) {
	item, ok := r.items[itemID]
	if !ok || item.SaleID != saleID {
		return SaleItem{}, ErrSaleNotFound
	}
	return item, nil
}

func (r *saleRepo) ListItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	var items []SaleItem
	for id := int64(1); id <= r.nextItem; id++ {
		if item, ok := r.items[id]; ok && item.SaleID == saleID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (r *saleRepo) InsertItem(ctx context.Context, item SaleItem, total decimal.Decimal) (SaleItem, error) {
	if r.failInsert != nil {
		return SaleItem{}, r.failInsert
	}
	r.nextItem++
	item.ID = r.nextItem
	r.items[item.ID] = item
	r.setTotal(item.SaleID, total)
	return item, nil
}

func (r *saleRepo) UpdateItem(ctx context.Context, item SaleItem, total decimal.Decimal) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrSaleNotFound
	}
	r.items[item.ID] = item
	r.setTotal(item.SaleID, total)
	return nil
}

func (r *saleRepo) DeleteItem(ctx context.Context, saleID, itemID int64, total decimal.Decimal) error {
	if _, ok := r.items[itemID]; !ok {
		return ErrSaleNotFound
	}
	delete(r.items, itemID)
	r.setTotal(saleID, total)
	return nil
}

func (r *saleRepo) AddPaid(ctx context.Context, id int64, amount decimal.Decimal) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	sale.Paid = sale.Paid.Add(amount)
	sale.Status = statusFor(sale.Total, sale.Paid)
	r.sales[id] = sale
	return sale, nil
}

func (r *saleRepo) setTotal(saleID int64, total decimal.Decimal) {
	sale := r.sales[saleID]
	sale.Total = total
	r.sales[saleID] = sale
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []ledger.CounterpartyTransactionInput
	fail    error
}

func (l *fakeLedger) RecordCustomerTransaction(ctx context.Context, input ledger.CounterpartyTransactionInput) (ledger.CounterpartyTransaction, error) {
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

func newTestService(repo *saleRepo, lp *fakeLedger, sp *fakeStock) *Service {
	return NewService(slog.Default(), repo, lp, sp)
}

func TestCreateSale(t *testing.T) {
	repo := newSaleRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := newTestService(repo, lp, sp)

	sale, items, err := svc.Create(context.Background(), CreateInput{
		CustomerID: 3,
		InvoiceNo:  "INV-1",
		Items: []ItemInput{
			{ProductID: 1, Quantity: dec("3"), UnitPrice: dec("10")},
			{ProductID: 2, Quantity: dec("1"), UnitPrice: dec("25")},
		},
	})
	require.NoError(t, err)
	require.True(t, sale.Total.Equal(dec("55")))
	require.Equal(t, StatusUnpaid, sale.Status)
	require.Len(t, items, 2)

	// One stock delta per line, moving stock out for the customer.
	require.Len(t, sp.deltas, 2)
	require.Equal(t, inventory.MovementSale, sp.deltas[0].Kind)
	require.Equal(t, int64(1), sp.deltas[0].NewProductID)
	require.Equal(t, "INV-1", sp.deltas[0].InvoiceRef)

	// One originating ledger entry for the full total, no payment yet.
	require.Len(t, lp.entries, 1)
	require.Equal(t, ledger.TxSale, lp.entries[0].Kind)
	require.True(t, lp.entries[0].Amount.Equal(dec("55")))
	require.Equal(t, sale.ID, *lp.entries[0].ReferenceID)
}

func TestCreateSaleLedgerFailureUnwinds(t *testing.T) {
	repo := newSaleRepo()
	lp := &fakeLedger{fail: shared.NotFoundf("customer not found")}
	sp := &fakeStock{}
	svc := newTestService(repo, lp, sp)

	_, _, err := svc.Create(context.Background(), CreateInput{
		CustomerID: 99,
		InvoiceNo:  "INV-9",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("2"), UnitPrice: dec("5")}},
	})
	require.Error(t, err)
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
	require.Empty(t, repo.sales, "header dropped")
	// Applied delta plus its reversal.
	require.Len(t, sp.deltas, 2)
	require.Equal(t, int64(1), sp.deltas[1].OldProductID)
	require.True(t, sp.deltas[1].OldQuantity.Equal(dec("2")))
	require.Zero(t, sp.deltas[1].NewProductID)
}

func TestCreateSaleValidation(t *testing.T) {
	svc := newTestService(newSaleRepo(), &fakeLedger{}, &fakeStock{})
	ctx := context.Background()

	_, _, err := svc.Create(ctx, CreateInput{InvoiceNo: "X", Items: []ItemInput{{ProductID: 1, Quantity: dec("1")}}})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))

	_, _, err = svc.Create(ctx, CreateInput{CustomerID: 1, InvoiceNo: "X"})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))

	_, _, err = svc.Create(ctx, CreateInput{CustomerID: 1, InvoiceNo: "X", Items: []ItemInput{{ProductID: 1, Quantity: dec("0")}}})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestItemLifecycle(t *testing.T) {
	repo := newSaleRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := newTestService(repo, lp, sp)
	ctx := context.Background()

	sale, _, err := svc.Create(ctx, CreateInput{
		CustomerID: 3,
		InvoiceNo:  "INV-2",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("3"), UnitPrice: dec("10")}},
	})
	require.NoError(t, err)

	item, err := svc.AddItem(ctx, sale.ID, ItemInput{ProductID: 2, Quantity: dec("2"), UnitPrice: dec("7")}, 0)
	require.NoError(t, err)
	require.True(t, repo.sales[sale.ID].Total.Equal(dec("44")))

	// Same-product quantity edit passes old and new through for the
	// stock delta to reconcile.
	_, err = svc.UpdateItem(ctx, sale.ID, item.ID, ItemInput{ProductID: 2, Quantity: dec("5"), UnitPrice: dec("7")}, 0)
	require.NoError(t, err)
	last := sp.deltas[len(sp.deltas)-1]
	require.Equal(t, int64(2), last.OldProductID)
	require.True(t, last.OldQuantity.Equal(dec("2")))
	require.True(t, last.NewQuantity.Equal(dec("5")))
	require.True(t, repo.sales[sale.ID].Total.Equal(dec("65")))

	require.NoError(t, svc.DeleteItem(ctx, sale.ID, item.ID, 0))
	last = sp.deltas[len(sp.deltas)-1]
	require.True(t, last.OldQuantity.Equal(dec("5")))
	require.Zero(t, last.NewProductID)
	require.True(t, repo.sales[sale.ID].Total.Equal(dec("30")))
}

func TestAddItemRepoFailureReversesStock(t *testing.T) {
	repo := newSaleRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := newTestService(repo, lp, sp)
	ctx := context.Background()

	sale, _, err := svc.Create(ctx, CreateInput{
		CustomerID: 3,
		InvoiceNo:  "INV-3",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("10")}},
	})
	require.NoError(t, err)

	repo.failInsert = context.DeadlineExceeded
	_, err = svc.AddItem(ctx, sale.ID, ItemInput{ProductID: 2, Quantity: dec("4"), UnitPrice: dec("7")}, 0)
	require.Error(t, err)
	last := sp.deltas[len(sp.deltas)-1]
	require.Equal(t, int64(2), last.OldProductID)
	require.True(t, last.OldQuantity.Equal(dec("4")))
	require.Zero(t, last.NewProductID)
}

func TestRecordPayment(t *testing.T) {
	repo := newSaleRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := newTestService(repo, lp, sp)
	ctx := context.Background()

	sale, _, err := svc.Create(ctx, CreateInput{
		CustomerID: 3,
		InvoiceNo:  "INV-4",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("10")}},
	})
	require.NoError(t, err)

	updated, err := svc.RecordPayment(ctx, sale.ID, dec("40"), "", 0)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, updated.Status)
	require.True(t, updated.Paid.Equal(dec("40")))

	updated, err = svc.RecordPayment(ctx, sale.ID, dec("60"), "", 0)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)

	require.Equal(t, ledger.TxPayment, lp.entries[len(lp.entries)-1].Kind)

	_, err = svc.RecordPayment(ctx, sale.ID, dec("0"), "", 0)
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestConcurrentPaymentsAccumulate(t *testing.T) {
	repo := newSaleRepo()
	lp := &fakeLedger{}
	sp := &fakeStock{}
	svc := newTestService(repo, lp, sp)
	ctx := context.Background()

	sale, _, err := svc.Create(ctx, CreateInput{
		CustomerID: 3,
		InvoiceNo:  "INV-7",
		Items:      []ItemInput{{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("10")}},
	})
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := svc.RecordPayment(ctx, sale.ID, dec("40"), "", 0)
			return err
		})
	}
	require.NoError(t, g.Wait())

	stored, err := repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.True(t, stored.Paid.Equal(dec("80")), "paid = %s", stored.Paid)
	require.Equal(t, StatusPartial, stored.Status)
	require.Len(t, lp.entries, 3) // invoice entry plus the two payments
}
