package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	retries int
}

// NewRepository constructs Repository. retries <= 0 selects the default
// serialization-failure retry budget.
func NewRepository(pool *pgxpool.Pool, retries int) *Repository {
	if retries <= 0 {
		retries = db.DefaultTxRetries
	}
	return &Repository{pool: pool, retries: retries}
}

// WithTx executes the callback inside a repeatable-read transaction, retrying
// the whole unit on serialization failure.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, r.retries, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetCustomerForUpdate(ctx context.Context, customerID int64) (CustomerBalance, error) {
	var bal CustomerBalance
	var current, receivable string
	err := r.tx.QueryRow(ctx, `SELECT id, current_balance::text, receivable::text FROM customers WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, customerID).
		Scan(&bal.CustomerID, &current, &receivable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerBalance{}, ErrCounterpartyNotFound
		}
		return CustomerBalance{}, err
	}
	if bal.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return CustomerBalance{}, err
	}
	if bal.Receivable, err = decimal.NewFromString(receivable); err != nil {
		return CustomerBalance{}, err
	}
	return bal, nil
}

func (r *txRepository) GetSupplierForUpdate(ctx context.Context, supplierID int64) (SupplierBalance, error) {
	var bal SupplierBalance
	var current, debt string
	err := r.tx.QueryRow(ctx, `SELECT id, current_balance::text, debt::text FROM suppliers WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, supplierID).
		Scan(&bal.SupplierID, &current, &debt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierBalance{}, ErrCounterpartyNotFound
		}
		return SupplierBalance{}, err
	}
	if bal.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return SupplierBalance{}, err
	}
	if bal.Debt, err = decimal.NewFromString(debt); err != nil {
		return SupplierBalance{}, err
	}
	return bal, nil
}

func (r *txRepository) LatestCounterpartyEntry(ctx context.Context, counterparty CounterpartyKind, counterpartyID int64) (CounterpartyTransaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, counterparty_id, counterparty_kind, kind, amount::text, balance_after::text, reference_id, description, created_at
FROM counterparty_transactions
WHERE counterparty_kind=$1 AND counterparty_id=$2
ORDER BY id DESC
LIMIT 1`, string(counterparty), counterpartyID)
	entry, err := scanCounterpartyEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CounterpartyTransaction{}, ErrNoEntries
	}
	return entry, err
}

func (r *txRepository) InsertCounterpartyEntry(ctx context.Context, entry CounterpartyTransaction) (CounterpartyTransaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO counterparty_transactions (counterparty_kind, counterparty_id, kind, amount, balance_after, reference_id, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		string(entry.Counterparty), entry.CounterpartyID, string(entry.Kind), entry.Amount.String(), entry.BalanceAfter.String(), entry.ReferenceID, entry.Description, entry.CreatedAt).
		Scan(&entry.ID)
	return entry, err
}

func (r *txRepository) UpdateCustomerBalance(ctx context.Context, balance CustomerBalance) error {
	tag, err := r.tx.Exec(ctx, `UPDATE customers SET current_balance=$2, receivable=$3, updated_at=NOW() WHERE id=$1`,
		balance.CustomerID, balance.CurrentBalance.String(), balance.Receivable.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCounterpartyNotFound
	}
	return nil
}

func (r *txRepository) UpdateSupplierBalance(ctx context.Context, balance SupplierBalance) error {
	tag, err := r.tx.Exec(ctx, `UPDATE suppliers SET current_balance=$2, debt=$3, updated_at=NOW() WHERE id=$1`,
		balance.SupplierID, balance.CurrentBalance.String(), balance.Debt.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCounterpartyNotFound
	}
	return nil
}

// GetMainAccountForUpdate locks the singleton cash-position row.
func (r *txRepository) GetMainAccountForUpdate(ctx context.Context) (decimal.Decimal, error) {
	var balance string
	err := r.tx.QueryRow(ctx, `SELECT balance::text FROM main_account WHERE id=1 FOR UPDATE`).Scan(&balance)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}

func (r *txRepository) LatestMainEntry(ctx context.Context) (MainAccountTransaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, direction, source_type, source_id, reference_id, amount::text, balance_after::text, description, created_at
FROM main_account_transactions
ORDER BY id DESC
LIMIT 1`)
	entry, err := scanMainEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return MainAccountTransaction{}, ErrNoEntries
	}
	return entry, err
}

func (r *txRepository) InsertMainEntry(ctx context.Context, entry MainAccountTransaction) (MainAccountTransaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO main_account_transactions (direction, source_type, source_id, reference_id, amount, balance_after, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		string(entry.Direction), string(entry.SourceType), entry.SourceID, entry.ReferenceID, entry.Amount.String(), entry.BalanceAfter.String(), entry.Description, entry.CreatedAt).
		Scan(&entry.ID)
	return entry, err
}

func (r *txRepository) UpdateMainAccountBalance(ctx context.Context, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE main_account SET balance=$1, updated_at=NOW() WHERE id=1`, balance.String())
	return err
}

func (r *txRepository) ReferenceExists(ctx context.Context, counterparty CounterpartyKind, referenceID int64) (bool, error) {
	table := "sales"
	if counterparty == KindSupplier {
		table = "purchases"
	}
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id=$1)`, referenceID).Scan(&exists)
	return exists, err
}

// Statement lists main-account entries in the filter window together with the
// stored global balance.
func (r *Repository) Statement(ctx context.Context, filter StatementFilter) (Statement, error) {
	if r == nil {
		return Statement{}, errors.New("ledger repository not initialised")
	}
	order := "DESC"
	if filter.Ascending {
		order = "ASC"
	}
	rows, err := r.pool.Query(ctx, `SELECT id, direction, source_type, source_id, reference_id, amount::text, balance_after::text, description, created_at
FROM main_account_transactions
WHERE created_at BETWEEN $1 AND $2
ORDER BY created_at `+order+`, id `+order+`
LIMIT $3`, filter.From, filter.To, filter.Limit)
	if err != nil {
		return Statement{}, err
	}
	defer rows.Close()

	statement := Statement{Transactions: []MainAccountTransaction{}}
	for rows.Next() {
		entry, err := scanMainEntry(rows)
		if err != nil {
			return Statement{}, err
		}
		statement.Transactions = append(statement.Transactions, entry)
	}
	if err := rows.Err(); err != nil {
		return Statement{}, err
	}

	var balance string
	if err := r.pool.QueryRow(ctx, `SELECT balance::text FROM main_account WHERE id=1`).Scan(&balance); err != nil {
		return Statement{}, err
	}
	if statement.TotalBalance, err = decimal.NewFromString(balance); err != nil {
		return Statement{}, err
	}
	return statement, nil
}

// ListCounterpartyTransactions returns a counterparty's entries, newest first.
func (r *Repository) ListCounterpartyTransactions(ctx context.Context, counterparty CounterpartyKind, counterpartyID int64, limit int) ([]CounterpartyTransaction, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, counterparty_id, counterparty_kind, kind, amount::text, balance_after::text, reference_id, description, created_at
FROM counterparty_transactions
WHERE counterparty_kind=$1 AND counterparty_id=$2
ORDER BY id DESC
LIMIT $3`, string(counterparty), counterpartyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []CounterpartyTransaction{}
	for rows.Next() {
		entry, err := scanCounterpartyEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCounterpartyEntry(row rowScanner) (CounterpartyTransaction, error) {
	var entry CounterpartyTransaction
	var kind, counterparty, amount, balanceAfter string
	var createdAt time.Time
	err := row.Scan(&entry.ID, &entry.CounterpartyID, &counterparty, &kind, &amount, &balanceAfter, &entry.ReferenceID, &entry.Description, &createdAt)
	if err != nil {
		return CounterpartyTransaction{}, err
	}
	entry.Counterparty = CounterpartyKind(counterparty)
	entry.Kind = TxKind(kind)
	entry.CreatedAt = createdAt
	if entry.Amount, err = decimal.NewFromString(amount); err != nil {
		return CounterpartyTransaction{}, err
	}
	if entry.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
		return CounterpartyTransaction{}, err
	}
	return entry, nil
}

func scanMainEntry(row rowScanner) (MainAccountTransaction, error) {
	var entry MainAccountTransaction
	var direction, sourceType, amount, balanceAfter string
	err := row.Scan(&entry.ID, &direction, &sourceType, &entry.SourceID, &entry.ReferenceID, &amount, &balanceAfter, &entry.Description, &entry.CreatedAt)
	if err != nil {
		return MainAccountTransaction{}, err
	}
	entry.Direction = Direction(direction)
	entry.SourceType = SourceType(sourceType)
	if entry.Amount, err = decimal.NewFromString(amount); err != nil {
		return MainAccountTransaction{}, err
	}
	if entry.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
		return MainAccountTransaction{}, err
	}
	return entry, nil
}
