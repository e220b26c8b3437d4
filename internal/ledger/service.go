package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/db"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// ErrNoEntries indicates an empty ledger for the requested entity; callers
// fall back to the aggregate's stored opening value.
var ErrNoEntries = errors.New("ledger: no entries")

// ErrCounterpartyNotFound indicates a missing customer or supplier row.
var ErrCounterpartyNotFound = errors.New("ledger: counterparty not found")

// TxRepository exposes the operations available inside one atomic unit. The
// *ForUpdate reads take a row lock so the resolved balance stays valid until
// commit.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, customerID int64) (CustomerBalance, error)
	GetSupplierForUpdate(ctx context.Context, supplierID int64) (SupplierBalance, error)
	LatestCounterpartyEntry(ctx context.Context, counterparty CounterpartyKind, counterpartyID int64) (CounterpartyTransaction, error)
	InsertCounterpartyEntry(ctx context.Context, entry CounterpartyTransaction) (CounterpartyTransaction, error)
	UpdateCustomerBalance(ctx context.Context, balance CustomerBalance) error
	UpdateSupplierBalance(ctx context.Context, balance SupplierBalance) error
	GetMainAccountForUpdate(ctx context.Context) (decimal.Decimal, error)
	LatestMainEntry(ctx context.Context) (MainAccountTransaction, error)
	InsertMainEntry(ctx context.Context, entry MainAccountTransaction) (MainAccountTransaction, error)
	UpdateMainAccountBalance(ctx context.Context, balance decimal.Decimal) error
	ReferenceExists(ctx context.Context, counterparty CounterpartyKind, referenceID int64) (bool, error)
}

// RepositoryPort abstracts ledger persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Statement(ctx context.Context, filter StatementFilter) (Statement, error)
	ListCounterpartyTransactions(ctx context.Context, counterparty CounterpartyKind, counterpartyID int64, limit int) ([]CounterpartyTransaction, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StatementCachePort caches the main-account read model; writes bump it.
type StatementCachePort interface {
	Fetch(ctx context.Context, filter StatementFilter, loader func(context.Context) (Statement, error)) (Statement, error)
	Bump(ctx context.Context) error
}

// Service is the transaction orchestrator: for one business event it decides
// which ledgers are written, with what sign conventions, as one atomic unit.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache StatementCachePort
}

// NewService builds Service. audit and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache StatementCachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// RecordCustomerTransaction appends one entry to a customer ledger and fans
// out to the main account per the sign table.
func (s *Service) RecordCustomerTransaction(ctx context.Context, input CounterpartyTransactionInput) (CounterpartyTransaction, error) {
	return s.record(ctx, KindCustomer, input)
}

// RecordSupplierTransaction appends one entry to a supplier ledger and fans
// out to the main account per the sign table.
func (s *Service) RecordSupplierTransaction(ctx context.Context, input CounterpartyTransactionInput) (CounterpartyTransaction, error) {
	return s.record(ctx, KindSupplier, input)
}

func (s *Service) record(ctx context.Context, counterparty CounterpartyKind, input CounterpartyTransactionInput) (CounterpartyTransaction, error) {
	if input.CounterpartyID == 0 {
		return CounterpartyTransaction{}, shared.InvalidArgumentf("%s id required", counterparty)
	}
	if err := validateAmount(input.Amount); err != nil {
		return CounterpartyTransaction{}, err
	}
	eff, ok := effectFor(counterparty, input.Kind)
	if !ok {
		return CounterpartyTransaction{}, shared.InvalidArgumentf("kind %q not allowed for %s ledger", input.Kind, counterparty)
	}

	now := time.Now().UTC()
	var created CounterpartyTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ReferenceID != nil {
			exists, err := tx.ReferenceExists(ctx, counterparty, *input.ReferenceID)
			if err != nil {
				return err
			}
			if !exists {
				return shared.NotFoundf("reference %d not found", *input.ReferenceID)
			}
		}

		prior, secondary, err := s.resolveCounterparty(ctx, tx, counterparty, input.CounterpartyID)
		if err != nil {
			return err
		}

		balanceAfter := prior.Add(applySign(eff.balanceSign, input.Amount))
		newSecondary := secondary.Add(applySign(eff.secondarySign, input.Amount))
		if eff.floorsAtZero && newSecondary.IsNegative() {
			newSecondary = decimal.Zero
		}

		created, err = tx.InsertCounterpartyEntry(ctx, CounterpartyTransaction{
			CounterpartyID: input.CounterpartyID,
			Counterparty:   counterparty,
			Kind:           input.Kind,
			Amount:         input.Amount,
			BalanceAfter:   balanceAfter,
			ReferenceID:    input.ReferenceID,
			Description:    input.Description,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}

		if eff.mainDirection != "" {
			if err := s.appendMainEntry(ctx, tx, MainAccountTransaction{
				Direction:   eff.mainDirection,
				SourceType:  eff.mainSource,
				SourceID:    input.CounterpartyID,
				ReferenceID: input.ReferenceID,
				Amount:      input.Amount,
				Description: input.Description,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}

		switch counterparty {
		case KindCustomer:
			return tx.UpdateCustomerBalance(ctx, CustomerBalance{
				CustomerID:     input.CounterpartyID,
				CurrentBalance: balanceAfter,
				Receivable:     newSecondary,
			})
		default:
			return tx.UpdateSupplierBalance(ctx, SupplierBalance{
				SupplierID:     input.CounterpartyID,
				CurrentBalance: balanceAfter,
				Debt:           newSecondary,
			})
		}
	})
	if err != nil {
		return CounterpartyTransaction{}, s.mapError(err)
	}

	s.afterWrite(ctx, input.ActorID, fmt.Sprintf("ledger:%s:%s", counterparty, input.Kind), created.ID, map[string]any{
		"counterparty_id": input.CounterpartyID,
		"amount":          input.Amount.String(),
		"balance_after":   created.BalanceAfter.String(),
	})
	return created, nil
}

// RecordExpense appends a main-account-only entry: ordinary expenses debit
// the account, expense adjustments credit it back.
func (s *Service) RecordExpense(ctx context.Context, input ExpenseInput) (MainAccountTransaction, error) {
	if err := validateAmount(input.Amount); err != nil {
		return MainAccountTransaction{}, err
	}
	direction := Debit
	source := SourceExpense
	switch input.Kind {
	case ExpenseOrdinary:
	case ExpenseAdjustment:
		direction = Credit
		source = SourceAdjustment
	default:
		return MainAccountTransaction{}, shared.InvalidArgumentf("unknown expense kind %q", input.Kind)
	}

	now := time.Now().UTC()
	var created MainAccountTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry := MainAccountTransaction{
			Direction:   direction,
			SourceType:  source,
			SourceID:    input.SourceID,
			Amount:      input.Amount,
			Description: input.Description,
			CreatedAt:   now,
		}
		var err error
		created, err = s.appendMainEntryReturning(ctx, tx, entry)
		return err
	})
	if err != nil {
		return MainAccountTransaction{}, s.mapError(err)
	}

	s.afterWrite(ctx, input.ActorID, fmt.Sprintf("ledger:expense:%s", input.Kind), created.ID, map[string]any{
		"amount":        input.Amount.String(),
		"balance_after": created.BalanceAfter.String(),
	})
	return created, nil
}

// MainAccountStatement returns the filtered main-account listing together
// with the current global balance.
func (s *Service) MainAccountStatement(ctx context.Context, filter StatementFilter) (Statement, error) {
	filter = normalizeFilter(filter)
	if s.cache != nil {
		return s.cache.Fetch(ctx, filter, func(ctx context.Context) (Statement, error) {
			return s.repo.Statement(ctx, filter)
		})
	}
	return s.repo.Statement(ctx, filter)
}

// CounterpartyHistory lists a counterparty's ledger entries, newest first.
func (s *Service) CounterpartyHistory(ctx context.Context, counterparty CounterpartyKind, counterpartyID int64, limit int) ([]CounterpartyTransaction, error) {
	if counterpartyID == 0 {
		return nil, shared.InvalidArgumentf("%s id required", counterparty)
	}
	if limit <= 0 {
		limit = 100
	}
	entries, err := s.repo.ListCounterpartyTransactions(ctx, counterparty, counterpartyID, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return entries, nil
}

// resolveCounterparty locks the aggregate row and returns the prior running
// balance (latest entry, falling back to the stored opening value) plus the
// secondary column.
func (s *Service) resolveCounterparty(ctx context.Context, tx TxRepository, counterparty CounterpartyKind, id int64) (balance, secondary decimal.Decimal, err error) {
	switch counterparty {
	case KindCustomer:
		agg, err := tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		balance, secondary = agg.CurrentBalance, agg.Receivable
	default:
		agg, err := tx.GetSupplierForUpdate(ctx, id)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		balance, secondary = agg.CurrentBalance, agg.Debt
	}
	latest, err := tx.LatestCounterpartyEntry(ctx, counterparty, id)
	switch {
	case err == nil:
		balance = latest.BalanceAfter
	case errors.Is(err, ErrNoEntries):
	default:
		return decimal.Zero, decimal.Zero, err
	}
	return balance, secondary, nil
}

func (s *Service) appendMainEntry(ctx context.Context, tx TxRepository, entry MainAccountTransaction) error {
	_, err := s.appendMainEntryReturning(ctx, tx, entry)
	return err
}

// appendMainEntryReturning chains the entry off the global running balance.
// The singleton row lock serialises every writer that funnels through the
// main account.
func (s *Service) appendMainEntryReturning(ctx context.Context, tx TxRepository, entry MainAccountTransaction) (MainAccountTransaction, error) {
	prior, err := tx.GetMainAccountForUpdate(ctx)
	if err != nil {
		return MainAccountTransaction{}, err
	}
	latest, err := tx.LatestMainEntry(ctx)
	switch {
	case err == nil:
		prior = latest.BalanceAfter
	case errors.Is(err, ErrNoEntries):
	default:
		return MainAccountTransaction{}, err
	}

	if entry.Direction == Credit {
		entry.BalanceAfter = prior.Add(entry.Amount)
	} else {
		entry.BalanceAfter = prior.Sub(entry.Amount)
	}
	created, err := tx.InsertMainEntry(ctx, entry)
	if err != nil {
		return MainAccountTransaction{}, err
	}
	if err := tx.UpdateMainAccountBalance(ctx, entry.BalanceAfter); err != nil {
		return MainAccountTransaction{}, err
	}
	return created, nil
}

func (s *Service) afterWrite(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "ledger_entry",
			EntityID: fmt.Sprintf("%d", entryID),
			Meta:     meta,
		})
	}
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, ErrCounterpartyNotFound):
		return shared.NewError(shared.CodeNotFound, err, "counterparty not found")
	case errors.Is(err, db.ErrTxRetriesExhausted):
		return shared.NewError(shared.CodeConflict, err, "concurrent write invalidated the resolved balance")
	default:
		var coded *shared.Error
		if errors.As(err, &coded) {
			return err
		}
		return shared.Internal(err, "ledger write failed")
	}
}

// validateAmount enforces a non-negative, finite, 2-decimal amount.
func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.InvalidArgumentf("amount must not be negative")
	}
	if !amount.Round(2).Equal(amount) {
		return shared.InvalidArgumentf("amount must have at most 2 decimal places")
	}
	return nil
}

// normalizeFilter applies the listing defaults: current calendar month,
// limit 500, newest first.
func normalizeFilter(filter StatementFilter) StatementFilter {
	if filter.From.IsZero() && filter.To.IsZero() {
		now := time.Now().UTC()
		filter.From = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		filter.To = filter.From.AddDate(0, 1, 0).Add(-time.Nanosecond)
	}
	if filter.Limit <= 0 || filter.Limit > 5000 {
		filter.Limit = 500
	}
	return filter
}
