package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/warungbooks/warungbooks/internal/jobs"
)

// LedgerIntegrityChecker verifies that every counterparty aggregate equals
// the balanceAfter of its latest entry and that the main-account balance
// equals both its latest entry and the signed sum of all entries.
type LedgerIntegrityChecker struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityChecker constructs the checker. metrics may be nil.
func NewLedgerIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityChecker {
	return &LedgerIntegrityChecker{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks.
func (c *LedgerIntegrityChecker) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := c.metrics.Track("ledger_integrity")
	return tracker.End(c.Run(ctx))
}

// Run executes one scan. Discrepancies are logged and counted, never
// auto-repaired.
func (c *LedgerIntegrityChecker) Run(ctx context.Context) error {
	found := 0

	n, err := c.scanCounterparties(ctx, "customer", `
SELECT c.id, c.current_balance::text, t.balance_after::text
FROM customers c
JOIN LATERAL (
	SELECT balance_after FROM counterparty_transactions
	WHERE counterparty_kind='customer' AND counterparty_id=c.id
	ORDER BY id DESC LIMIT 1
) t ON true
WHERE c.current_balance <> t.balance_after`)
	if err != nil {
		return err
	}
	found += n

	n, err = c.scanCounterparties(ctx, "supplier", `
SELECT s.id, s.current_balance::text, t.balance_after::text
FROM suppliers s
JOIN LATERAL (
	SELECT balance_after FROM counterparty_transactions
	WHERE counterparty_kind='supplier' AND counterparty_id=s.id
	ORDER BY id DESC LIMIT 1
) t ON true
WHERE s.current_balance <> t.balance_after`)
	if err != nil {
		return err
	}
	found += n

	n, err = c.checkMainAccount(ctx)
	if err != nil {
		return err
	}
	found += n

	c.metrics.SetDiscrepancies("ledger", found)
	if found == 0 {
		c.logger.Info("ledger integrity scan clean")
	} else {
		c.logger.Warn("ledger integrity scan found discrepancies", slog.Int("count", found))
	}
	return nil
}

func (c *LedgerIntegrityChecker) scanCounterparties(ctx context.Context, kind, query string) (int, error) {
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id int64
		var aggregate, latest string
		if err := rows.Scan(&id, &aggregate, &latest); err != nil {
			return count, err
		}
		count++
		c.logger.Warn("counterparty balance out of sync",
			slog.String("kind", kind),
			slog.Int64("id", id),
			slog.String("aggregate", aggregate),
			slog.String("latest_entry", latest))
	}
	return count, rows.Err()
}

func (c *LedgerIntegrityChecker) checkMainAccount(ctx context.Context) (int, error) {
	var balance, latest, signedSum string
	var latestMismatch, sumMismatch bool
	err := c.pool.QueryRow(ctx, `
WITH chain AS (
	SELECT COALESCE((SELECT balance_after FROM main_account_transactions ORDER BY id DESC LIMIT 1), 0) AS latest,
		COALESCE((SELECT SUM(CASE direction WHEN 'credit' THEN amount ELSE -amount END) FROM main_account_transactions), 0) AS signed_sum
)
SELECT m.balance::text, chain.latest::text, chain.signed_sum::text,
	m.balance <> chain.latest, m.balance <> chain.signed_sum
FROM main_account m, chain WHERE m.id=1`).Scan(&balance, &latest, &signedSum, &latestMismatch, &sumMismatch)
	if err != nil {
		return 0, err
	}

	count := 0
	if latestMismatch {
		count++
		c.logger.Warn("main account balance out of sync with latest entry",
			slog.String("aggregate", balance),
			slog.String("latest_entry", latest))
	}
	if sumMismatch {
		count++
		c.logger.Warn("main account balance out of sync with signed sum",
			slog.String("aggregate", balance),
			slog.String("signed_sum", signedSum))
	}
	return count, nil
}
