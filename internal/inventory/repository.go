package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/db"
)

// Repository persists stock data in PostgreSQL. The product aggregate columns
// live on the products row; movements are append-only.
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
		return errors.New("inventory repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, r.retries, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	var stock ProductStock
	var qty, cost, price, avg, prevCost, prevPrice, prevAvg string
	err := r.tx.QueryRow(ctx, `SELECT id, quantity::text, cost::text, price::text, avg_price::text, previous_cost::text, previous_price::text, previous_avg_price::text, updated_at
FROM products WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, productID).
		Scan(&stock.ProductID, &qty, &cost, &price, &avg, &prevCost, &prevPrice, &prevAvg, &stock.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, ErrStockNotFound
		}
		return ProductStock{}, err
	}
	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&stock.Quantity, qty},
		{&stock.Cost, cost},
		{&stock.Price, price},
		{&stock.AvgPrice, avg},
		{&stock.PreviousCost, prevCost},
		{&stock.PreviousPrice, prevPrice},
		{&stock.PreviousAvgPrice, prevAvg},
	} {
		if *field.dst, err = decimal.NewFromString(field.src); err != nil {
			return ProductStock{}, err
		}
	}
	return stock, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(product_id, kind, quantity, stock_after, unit_price, cost_price, sell_price, avg_price, previous_cost, previous_price, previous_avg_price, counterparty_id, invoice_ref, total_amount, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id`,
		m.ProductID, string(m.Kind), m.Quantity.String(), m.StockAfter.String(), m.UnitPrice.String(), m.CostPrice.String(), m.SellPrice.String(), m.AvgPrice.String(),
		m.PreviousCost.String(), m.PreviousPrice.String(), m.PreviousAvgPrice.String(), m.CounterpartyID, m.InvoiceRef, m.TotalAmount.String(), m.Description, m.CreatedAt).
		Scan(&m.ID)
	return m, err
}

func (r *txRepository) UpdateProductStock(ctx context.Context, stock ProductStock) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products
SET quantity=$2, cost=$3, price=$4, avg_price=$5, previous_cost=$6, previous_price=$7, previous_avg_price=$8, updated_at=NOW()
WHERE id=$1`,
		stock.ProductID, stock.Quantity.String(), stock.Cost.String(), stock.Price.String(), stock.AvgPrice.String(),
		stock.PreviousCost.String(), stock.PreviousPrice.String(), stock.PreviousAvgPrice.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

// StockCard lists movements for one product, newest first.
func (r *Repository) StockCard(ctx context.Context, filter StockCardFilter) ([]StockMovement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, kind, quantity::text, stock_after::text, unit_price::text, cost_price::text, sell_price::text, avg_price::text, previous_cost::text, previous_price::text, previous_avg_price::text, counterparty_id, invoice_ref, total_amount::text, description, created_at
FROM stock_movements
WHERE product_id=$1 AND created_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY id DESC
LIMIT $4`, filter.ProductID, nullTime(filter.From), nullTime(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []StockMovement{}
	for rows.Next() {
		var m StockMovement
		var kind string
		fields := make([]string, 10)
		err := rows.Scan(&m.ID, &m.ProductID, &kind, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &fields[5], &fields[6], &fields[7], &fields[8], &m.CounterpartyID, &m.InvoiceRef, &fields[9], &m.Description, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		for i, dst := range []*decimal.Decimal{&m.Quantity, &m.StockAfter, &m.UnitPrice, &m.CostPrice, &m.SellPrice, &m.AvgPrice, &m.PreviousCost, &m.PreviousPrice, &m.PreviousAvgPrice, &m.TotalAmount} {
			if *dst, err = decimal.NewFromString(fields[i]); err != nil {
				return nil, err
			}
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
