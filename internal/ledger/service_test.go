package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warungbooks/warungbooks/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	customers    map[int64]CustomerBalance
	suppliers    map[int64]SupplierBalance
	cpEntries    []CounterpartyTransaction
	mainEntries  []MainAccountTransaction
	mainBalance  decimal.Decimal
	references   map[CounterpartyKind]map[int64]bool
	nextCpID     int64
	nextMainID   int64
	failCustomer error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers: map[int64]CustomerBalance{},
		suppliers: map[int64]SupplierBalance{},
		references: map[CounterpartyKind]map[int64]bool{
			KindCustomer: {},
			KindSupplier: {},
		},
	}
}

type repoSnapshot struct {
	customers   map[int64]CustomerBalance
	suppliers   map[int64]SupplierBalance
	cpEntries   []CounterpartyTransaction
	mainEntries []MainAccountTransaction
	mainBalance decimal.Decimal
	nextCpID    int64
	nextMainID  int64
}

func (r *memoryRepo) snapshot() repoSnapshot {
	customers := make(map[int64]CustomerBalance, len(r.customers))
	for k, v := range r.customers {
		customers[k] = v
	}
	suppliers := make(map[int64]SupplierBalance, len(r.suppliers))
	for k, v := range r.suppliers {
		suppliers[k] = v
	}
	return repoSnapshot{
		customers:   customers,
		suppliers:   suppliers,
		cpEntries:   append([]CounterpartyTransaction(nil), r.cpEntries...),
		mainEntries: append([]MainAccountTransaction(nil), r.mainEntries...),
		mainBalance: r.mainBalance,
		nextCpID:    r.nextCpID,
		nextMainID:  r.nextMainID,
	}
}

func (r *memoryRepo) restore(s repoSnapshot) {
	r.customers = s.customers
	r.suppliers = s.suppliers
	r.cpEntries = s.cpEntries
	r.mainEntries = s.mainEntries
	r.mainBalance = s.mainBalance
	r.nextCpID = s.nextCpID
	r.nextMainID = s.nextMainID
}

// WithTx serialises writers the way the row locks do in PostgreSQL and rolls
// the whole unit back on failure.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *memoryRepo) Statement(ctx context.Context, filter StatementFilter) (Statement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := []MainAccountTransaction{}
	for i := len(r.mainEntries) - 1; i >= 0; i-- {
		if len(entries) >= filter.Limit {
			break
		}
		entries = append(entries, r.mainEntries[i])
	}
	return Statement{Transactions: entries, TotalBalance: r.mainBalance}, nil
}

func (r *memoryRepo) ListCounterpartyTransactions(ctx context.Context, counterparty CounterpartyKind, counterpartyID int64, limit int) ([]CounterpartyTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := []CounterpartyTransaction{}
	for i := len(r.cpEntries) - 1; i >= 0 && len(entries) < limit; i-- {
		e := r.cpEntries[i]
		if e.Counterparty == counterparty && e.CounterpartyID == counterpartyID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetCustomerForUpdate(ctx context.Context, id int64) (CustomerBalance, error) {
	bal, ok := tx.repo.customers[id]
	if !ok {
		return CustomerBalance{}, ErrCounterpartyNotFound
	}
	return bal, nil
}

func (tx *memoryTx) GetSupplierForUpdate(ctx context.Context, id int64) (SupplierBalance, error) {
	bal, ok := tx.repo.suppliers[id]
	if !ok {
		return SupplierBalance{}, ErrCounterpartyNotFound
	}
	return bal, nil
}

func (tx *memoryTx) LatestCounterpartyEntry(ctx context.Context, counterparty CounterpartyKind, id int64) (CounterpartyTransaction, error) {
	for i := len(tx.repo.cpEntries) - 1; i >= 0; i-- {
		e := tx.repo.cpEntries[i]
		if e.Counterparty == counterparty && e.CounterpartyID == id {
			return e, nil
		}
	}
	return CounterpartyTransaction{}, ErrNoEntries
}

func (tx *memoryTx) InsertCounterpartyEntry(ctx context.Context, entry CounterpartyTransaction) (CounterpartyTransaction, error) {
	tx.repo.nextCpID++
	entry.ID = tx.repo.nextCpID
	tx.repo.cpEntries = append(tx.repo.cpEntries, entry)
	return entry, nil
}

func (tx *memoryTx) UpdateCustomerBalance(ctx context.Context, balance CustomerBalance) error {
	if tx.repo.failCustomer != nil {
		return tx.repo.failCustomer
	}
	tx.repo.customers[balance.CustomerID] = balance
	return nil
}

func (tx *memoryTx) UpdateSupplierBalance(ctx context.Context, balance SupplierBalance) error {
	tx.repo.suppliers[balance.SupplierID] = balance
	return nil
}

func (tx *memoryTx) GetMainAccountForUpdate(ctx context.Context) (decimal.Decimal, error) {
	return tx.repo.mainBalance, nil
}

func (tx *memoryTx) LatestMainEntry(ctx context.Context) (MainAccountTransaction, error) {
	if len(tx.repo.mainEntries) == 0 {
		return MainAccountTransaction{}, ErrNoEntries
	}
	return tx.repo.mainEntries[len(tx.repo.mainEntries)-1], nil
}

func (tx *memoryTx) InsertMainEntry(ctx context.Context, entry MainAccountTransaction) (MainAccountTransaction, error) {
	tx.repo.nextMainID++
	entry.ID = tx.repo.nextMainID
	tx.repo.mainEntries = append(tx.repo.mainEntries, entry)
	return entry, nil
}

func (tx *memoryTx) UpdateMainAccountBalance(ctx context.Context, balance decimal.Decimal) error {
	tx.repo.mainBalance = balance
	return nil
}

func (tx *memoryTx) ReferenceExists(ctx context.Context, counterparty CounterpartyKind, refID int64) (bool, error) {
	return tx.repo.references[counterparty][refID], nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCustomerSaleThenPayment(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[1] = CustomerBalance{CustomerID: 1}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	sale, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxSale, Amount: dec("100")})
	require.NoError(t, err)
	require.True(t, sale.BalanceAfter.Equal(dec("100")))
	require.True(t, repo.customers[1].Receivable.Equal(dec("100")))
	require.Empty(t, repo.mainEntries, "sale must not touch the main account")

	payment, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxPayment, Amount: dec("60")})
	require.NoError(t, err)
	require.True(t, payment.BalanceAfter.Equal(dec("40")))
	require.True(t, repo.customers[1].CurrentBalance.Equal(dec("40")))
	require.True(t, repo.customers[1].Receivable.Equal(dec("40")))

	require.Len(t, repo.mainEntries, 1)
	main := repo.mainEntries[0]
	require.Equal(t, Credit, main.Direction)
	require.Equal(t, SourceCustomer, main.SourceType)
	require.True(t, main.BalanceAfter.Equal(dec("60")))
	require.True(t, repo.mainBalance.Equal(dec("60")))
}

func TestCustomerRefundAndAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[7] = CustomerBalance{CustomerID: 7, CurrentBalance: dec("100"), Receivable: dec("100")}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	refund, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 7, Kind: TxRefund, Amount: dec("30")})
	require.NoError(t, err)
	require.True(t, refund.BalanceAfter.Equal(dec("70")))
	require.Equal(t, SourceCustomerRefund, repo.mainEntries[0].SourceType)
	require.Equal(t, Debit, repo.mainEntries[0].Direction)
	require.True(t, repo.mainBalance.Equal(dec("-30")))

	adj, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 7, Kind: TxAdjustment, Amount: dec("10")})
	require.NoError(t, err)
	require.True(t, adj.BalanceAfter.Equal(dec("80")))
	require.Equal(t, SourceAdjustment, repo.mainEntries[1].SourceType)
	require.Equal(t, Debit, repo.mainEntries[1].Direction)
}

func TestSupplierDebtFloorsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.suppliers[3] = SupplierBalance{SupplierID: 3}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordSupplierTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 3, Kind: TxPurchase, Amount: dec("200")})
	require.NoError(t, err)
	require.True(t, repo.suppliers[3].CurrentBalance.Equal(dec("-200")))
	require.True(t, repo.suppliers[3].Debt.Equal(dec("200")))
	require.Empty(t, repo.mainEntries, "purchase must not touch the main account")

	_, err = svc.RecordSupplierTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 3, Kind: TxPayment, Amount: dec("50")})
	require.NoError(t, err)
	require.True(t, repo.suppliers[3].CurrentBalance.Equal(dec("-150")))
	require.True(t, repo.suppliers[3].Debt.Equal(dec("150")))
	require.Equal(t, Debit, repo.mainEntries[0].Direction)
	require.Equal(t, SourceSupplier, repo.mainEntries[0].SourceType)

	_, err = svc.RecordSupplierTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 3, Kind: TxPayment, Amount: dec("300")})
	require.NoError(t, err)
	require.True(t, repo.suppliers[3].CurrentBalance.Equal(dec("150")))
	require.True(t, repo.suppliers[3].Debt.IsZero(), "debt must never go negative")
}

func TestSupplierRefundLeavesDebtUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.suppliers[4] = SupplierBalance{SupplierID: 4, CurrentBalance: dec("-80"), Debt: dec("80")}
	svc := NewService(repo, nil, nil)

	_, err := svc.RecordSupplierTransaction(context.Background(), CounterpartyTransactionInput{CounterpartyID: 4, Kind: TxRefund, Amount: dec("20")})
	require.NoError(t, err)
	require.True(t, repo.suppliers[4].CurrentBalance.Equal(dec("-60")))
	require.True(t, repo.suppliers[4].Debt.Equal(dec("80")))
	require.Equal(t, Credit, repo.mainEntries[0].Direction)
	require.Equal(t, SourceSupplierRefund, repo.mainEntries[0].SourceType)
}

func TestKindValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[1] = CustomerBalance{CustomerID: 1}
	repo.suppliers[1] = SupplierBalance{SupplierID: 1}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxPurchase, Amount: dec("10")})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))

	_, err = svc.RecordSupplierTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxSale, Amount: dec("10")})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))

	_, err = svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: "transfer", Amount: dec("10")})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestAmountValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[1] = CustomerBalance{CustomerID: 1}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxSale, Amount: dec("-5")})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))

	_, err = svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxSale, Amount: dec("10.005")})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestUnknownCounterparty(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.RecordCustomerTransaction(context.Background(), CounterpartyTransactionInput{CounterpartyID: 99, Kind: TxSale, Amount: dec("10")})
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
}

func TestMissingReference(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[1] = CustomerBalance{CustomerID: 1}
	svc := NewService(repo, nil, nil)

	ref := int64(42)
	_, err := svc.RecordCustomerTransaction(context.Background(), CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxPayment, Amount: dec("10"), ReferenceID: &ref})
	require.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
	require.Empty(t, repo.cpEntries)
}

func TestAtomicRollback(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[1] = CustomerBalance{CustomerID: 1, CurrentBalance: dec("50"), Receivable: dec("50")}
	repo.failCustomer = errors.New("storage gone")
	svc := NewService(repo, nil, nil)

	_, err := svc.RecordCustomerTransaction(context.Background(), CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxPayment, Amount: dec("20")})
	require.Error(t, err)
	require.Equal(t, shared.CodeInternal, shared.CodeOf(err))

	require.Empty(t, repo.cpEntries, "ledger entry must not survive a failed aggregate update")
	require.Empty(t, repo.mainEntries, "main-account entry must not survive a failed aggregate update")
	require.True(t, repo.customers[1].CurrentBalance.Equal(dec("50")))
	require.True(t, repo.mainBalance.IsZero())
}

func TestConcurrentPayments(t *testing.T) {
	repo := newMemoryRepo()
	repo.customers[1] = CustomerBalance{CustomerID: 1}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxSale, Amount: dec("100")})
	require.NoError(t, err)

	const workers = 25
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := svc.RecordCustomerTransaction(ctx, CounterpartyTransactionInput{CounterpartyID: 1, Kind: TxPayment, Amount: dec("4")})
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.True(t, repo.customers[1].CurrentBalance.IsZero())
	require.Len(t, repo.cpEntries, workers+1)

	// Every entry must chain off its predecessor with a distinct balance.
	seen := map[string]bool{}
	prev := decimal.Zero
	for i, entry := range repo.cpEntries {
		if i == 0 {
			prev = entry.BalanceAfter
			continue
		}
		require.True(t, entry.BalanceAfter.Equal(prev.Sub(dec("4"))), "entry %d breaks the chain", entry.ID)
		require.False(t, seen[entry.BalanceAfter.String()], "duplicate running balance")
		seen[entry.BalanceAfter.String()] = true
		prev = entry.BalanceAfter
	}

	// Main-account consistency: stored balance equals the signed sum of all entries.
	sum := decimal.Zero
	for _, e := range repo.mainEntries {
		if e.Direction == Credit {
			sum = sum.Add(e.Amount)
		} else {
			sum = sum.Sub(e.Amount)
		}
	}
	require.True(t, repo.mainBalance.Equal(sum))
	require.True(t, repo.mainBalance.Equal(dec("100")))
	require.True(t, repo.mainEntries[len(repo.mainEntries)-1].BalanceAfter.Equal(repo.mainBalance))
}

func TestExpenses(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	out, err := svc.RecordExpense(ctx, ExpenseInput{Kind: ExpenseOrdinary, Amount: dec("75.50"), Description: "rent"})
	require.NoError(t, err)
	require.Equal(t, Debit, out.Direction)
	require.Equal(t, SourceExpense, out.SourceType)
	require.True(t, out.BalanceAfter.Equal(dec("-75.50")))

	in, err := svc.RecordExpense(ctx, ExpenseInput{Kind: ExpenseAdjustment, Amount: dec("25.50")})
	require.NoError(t, err)
	require.Equal(t, Credit, in.Direction)
	require.Equal(t, SourceAdjustment, in.SourceType)
	require.True(t, in.BalanceAfter.Equal(dec("-50")))
	require.True(t, repo.mainBalance.Equal(dec("-50")))

	_, err = svc.RecordExpense(ctx, ExpenseInput{Kind: "midnight", Amount: dec("1")})
	require.Equal(t, shared.CodeInvalidArgument, shared.CodeOf(err))
}

func TestStatementIsIdempotentRead(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordExpense(ctx, ExpenseInput{Kind: ExpenseOrdinary, Amount: dec("10")})
	require.NoError(t, err)

	first, err := svc.MainAccountStatement(ctx, StatementFilter{})
	require.NoError(t, err)
	second, err := svc.MainAccountStatement(ctx, StatementFilter{})
	require.NoError(t, err)
	require.Equal(t, len(first.Transactions), len(second.Transactions))
	require.True(t, first.TotalBalance.Equal(second.TotalBalance))
}
