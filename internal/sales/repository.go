package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/db"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateSale(ctx context.Context, sale Sale, items []SaleItem) (Sale, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO sales (invoice_no, customer_id, status, total, paid, description, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
			sale.InvoiceNo, sale.CustomerID, string(sale.Status), sale.Total.String(), sale.Paid.String(), sale.Description).
			Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt)
		if err != nil {
			return err
		}
		for _, item := range items {
			_, err := tx.Exec(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, total, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())`,
				sale.ID, item.ProductID, item.Quantity.String(), item.UnitPrice.String(), item.Total.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Sale{}, shared.Conflictf("invoice number %s already used", sale.InvoiceNo)
		}
		return Sale{}, err
	}
	return sale, nil
}

func (r *Repository) DeleteSale(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_id=$1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM sales WHERE id=$1`, id)
		return err
	})
}

func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	var sale Sale
	var status, total, paid string
	err := r.pool.QueryRow(ctx, `SELECT id, invoice_no, customer_id, status, total::text, paid::text, description, created_at, updated_at
FROM sales WHERE id=$1`, id).
		Scan(&sale.ID, &sale.InvoiceNo, &sale.CustomerID, &status, &total, &paid, &sale.Description, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	sale.Status = Status(status)
	if sale.Total, err = decimal.NewFromString(total); err != nil {
		return Sale{}, err
	}
	if sale.Paid, err = decimal.NewFromString(paid); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	var totalRows int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE ($1 = 0 OR customer_id=$1)`, filter.CustomerID).Scan(&totalRows); err != nil {
		return nil, shared.Pagination{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, invoice_no, customer_id, status, total::text, paid::text, description, created_at, updated_at
FROM sales WHERE ($1 = 0 OR customer_id=$1)
ORDER BY id DESC LIMIT $2 OFFSET $3`,
		filter.CustomerID, filter.PerPage, (filter.Page-1)*filter.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	list := []Sale{}
	for rows.Next() {
		var sale Sale
		var status, total, paid string
		if err := rows.Scan(&sale.ID, &sale.InvoiceNo, &sale.CustomerID, &status, &total, &paid, &sale.Description, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		sale.Status = Status(status)
		if sale.Total, err = decimal.NewFromString(total); err != nil {
			return nil, shared.Pagination{}, err
		}
		if sale.Paid, err = decimal.NewFromString(paid); err != nil {
			return nil, shared.Pagination{}, err
		}
		list = append(list, sale)
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, totalRows), rows.Err()
}

func (r *Repository) GetItem(ctx context.Context, saleID, itemID int64) (SaleItem, error) {
	var item SaleItem
	var qty, price, total string
	err := r.pool.QueryRow(ctx, `SELECT id, sale_id, product_id, quantity::text, unit_price::text, total::text, created_at
FROM sale_items WHERE id=$1 AND sale_id=$2`, itemID, saleID).
		Scan(&item.ID, &item.SaleID, &item.ProductID, &qty, &price, &total, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SaleItem{}, ErrSaleNotFound
		}
		return SaleItem{}, err
	}
	return scanItemDecimals(item, qty, price, total)
}

func (r *Repository) ListItems(ctx context.Context, saleID int64) ([]SaleItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, quantity::text, unit_price::text, total::text, created_at
FROM sale_items WHERE sale_id=$1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []SaleItem{}
	for rows.Next() {
		var item SaleItem
		var qty, price, total string
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &qty, &price, &total, &item.CreatedAt); err != nil {
			return nil, err
		}
		if item, err = scanItemDecimals(item, qty, price, total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) InsertItem(ctx context.Context, item SaleItem, total decimal.Decimal) (SaleItem, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, total, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id, created_at`,
			item.SaleID, item.ProductID, item.Quantity.String(), item.UnitPrice.String(), item.Total.String()).
			Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return err
		}
		return updateTotal(ctx, tx, item.SaleID, total)
	})
	if err != nil {
		return SaleItem{}, err
	}
	return item, nil
}

func (r *Repository) UpdateItem(ctx context.Context, item SaleItem, total decimal.Decimal) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE sale_items SET product_id=$3, quantity=$4, unit_price=$5, total=$6
WHERE id=$1 AND sale_id=$2`,
			item.ID, item.SaleID, item.ProductID, item.Quantity.String(), item.UnitPrice.String(), item.Total.String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrSaleNotFound
		}
		return updateTotal(ctx, tx, item.SaleID, total)
	})
}

func (r *Repository) DeleteItem(ctx context.Context, saleID, itemID int64, total decimal.Decimal) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM sale_items WHERE id=$1 AND sale_id=$2`, itemID, saleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrSaleNotFound
		}
		return updateTotal(ctx, tx, saleID, total)
	})
}

// AddPaid increments the paid total and derives the status in one statement,
// so concurrent payments serialise on the row instead of overwriting each
// other's read.
func (r *Repository) AddPaid(ctx context.Context, id int64, amount decimal.Decimal) (Sale, error) {
	var sale Sale
	var status, total, paid string
	err := r.pool.QueryRow(ctx, `UPDATE sales SET paid = paid + $2,
	status = CASE WHEN paid + $2 >= total THEN 'paid' WHEN paid + $2 = 0 THEN 'unpaid' ELSE 'partial' END,
	updated_at = NOW()
WHERE id=$1
RETURNING id, invoice_no, customer_id, status, total::text, paid::text, description, created_at, updated_at`,
		id, amount.String()).
		Scan(&sale.ID, &sale.InvoiceNo, &sale.CustomerID, &status, &total, &paid, &sale.Description, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	sale.Status = Status(status)
	if sale.Total, err = decimal.NewFromString(total); err != nil {
		return Sale{}, err
	}
	if sale.Paid, err = decimal.NewFromString(paid); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func updateTotal(ctx context.Context, tx pgx.Tx, saleID int64, total decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `UPDATE sales SET total=$2, updated_at=NOW() WHERE id=$1`, saleID, total.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func scanItemDecimals(item SaleItem, qty, price, total string) (SaleItem, error) {
	var err error
	if item.Quantity, err = decimal.NewFromString(qty); err != nil {
		return SaleItem{}, err
	}
	if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return SaleItem{}, err
	}
	if item.Total, err = decimal.NewFromString(total); err != nil {
		return SaleItem{}, err
	}
	return item, nil
}
