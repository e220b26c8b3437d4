package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTxRetries bounds how often a serialization failure is retried before
// the whole operation is surfaced as a conflict.
const DefaultTxRetries = 3

// ErrTxRetriesExhausted is returned when every retry attempt hit a
// serialization failure.
var ErrTxRetriesExhausted = errors.New("platform/db: tx retries exhausted")

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithTxRetry runs fn like WithTx but retries the whole unit when the
// transaction aborts with a serialization failure or deadlock. Retries are
// bounded; ErrTxRetriesExhausted wraps the last failure once the budget is
// spent.
func WithTxRetry(ctx context.Context, pool *pgxpool.Pool, retries int, fn func(pgx.Tx) error) error {
	if retries <= 0 {
		retries = DefaultTxRetries
	}
	var last error
	for attempt := 0; attempt <= retries; attempt++ {
		last = WithTx(ctx, pool, fn)
		if last == nil || !IsSerializationFailure(last) {
			return last
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %w", ErrTxRetriesExhausted, last)
}

// IsSerializationFailure reports whether err is a retryable transaction abort
// (serialization_failure 40001 or deadlock_detected 40P01).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
