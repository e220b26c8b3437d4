package purchases

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/db"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// Repository persists purchases in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreatePurchase(ctx context.Context, purchase Purchase, items []PurchaseItem) (Purchase, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO purchases (invoice_no, supplier_id, status, total, paid, description, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
			purchase.InvoiceNo, purchase.SupplierID, string(purchase.Status), purchase.Total.String(), purchase.Paid.String(), purchase.Description).
			Scan(&purchase.ID, &purchase.CreatedAt, &purchase.UpdatedAt)
		if err != nil {
			return err
		}
		for _, item := range items {
			_, err := tx.Exec(ctx, `INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_cost, total, created_at)
VALUES ($1,$2,$3,$4,$5,NOW())`,
				purchase.ID, item.ProductID, item.Quantity.String(), item.UnitCost.String(), item.Total.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Purchase{}, shared.Conflictf("invoice number %s already used", purchase.InvoiceNo)
		}
		return Purchase{}, err
	}
	return purchase, nil
}

func (r *Repository) DeletePurchase(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM purchase_items WHERE purchase_id=$1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM purchases WHERE id=$1`, id)
		return err
	})
}

func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	var purchase Purchase
	var status, total, paid string
	err := r.pool.QueryRow(ctx, `SELECT id, invoice_no, supplier_id, status, total::text, paid::text, description, created_at, updated_at
FROM purchases WHERE id=$1`, id).
		Scan(&purchase.ID, &purchase.InvoiceNo, &purchase.SupplierID, &status, &total, &paid, &purchase.Description, &purchase.CreatedAt, &purchase.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	purchase.Status = Status(status)
	if purchase.Total, err = decimal.NewFromString(total); err != nil {
		return Purchase{}, err
	}
	if purchase.Paid, err = decimal.NewFromString(paid); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

func (r *Repository) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, shared.Pagination, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	var totalRows int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases WHERE ($1 = 0 OR supplier_id=$1)`, filter.SupplierID).Scan(&totalRows); err != nil {
		return nil, shared.Pagination{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, invoice_no, supplier_id, status, total::text, paid::text, description, created_at, updated_at
FROM purchases WHERE ($1 = 0 OR supplier_id=$1)
ORDER BY id DESC LIMIT $2 OFFSET $3`,
		filter.SupplierID, filter.PerPage, (filter.Page-1)*filter.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()

	list := []Purchase{}
	for rows.Next() {
		var purchase Purchase
		var status, total, paid string
		if err := rows.Scan(&purchase.ID, &purchase.InvoiceNo, &purchase.SupplierID, &status, &total, &paid, &purchase.Description, &purchase.CreatedAt, &purchase.UpdatedAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		purchase.Status = Status(status)
		if purchase.Total, err = decimal.NewFromString(total); err != nil {
			return nil, shared.Pagination{}, err
		}
		if purchase.Paid, err = decimal.NewFromString(paid); err != nil {
			return nil, shared.Pagination{}, err
		}
		list = append(list, purchase)
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, totalRows), rows.Err()
}

func (r *Repository) GetItem(ctx context.Context, purchaseID, itemID int64) (PurchaseItem, error) {
	var item PurchaseItem
	var qty, cost, total string
	err := r.pool.QueryRow(ctx, `SELECT id, purchase_id, product_id, quantity::text, unit_cost::text, total::text, created_at
FROM purchase_items WHERE id=$1 AND purchase_id=$2`, itemID, purchaseID).
		Scan(&item.ID, &item.PurchaseID, &item.ProductID, &qty, &cost, &total, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseItem{}, ErrPurchaseNotFound
		}
		return PurchaseItem{}, err
	}
	return scanItemDecimals(item, qty, cost, total)
}

func (r *Repository) ListItems(ctx context.Context, purchaseID int64) ([]PurchaseItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_id, product_id, quantity::text, unit_cost::text, total::text, created_at
FROM purchase_items WHERE purchase_id=$1 ORDER BY id`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []PurchaseItem{}
	for rows.Next() {
		var item PurchaseItem
		var qty, cost, total string
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &qty, &cost, &total, &item.CreatedAt); err != nil {
			return nil, err
		}
		if item, err = scanItemDecimals(item, qty, cost, total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) InsertItem(ctx context.Context, item PurchaseItem, total decimal.Decimal) (PurchaseItem, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_cost, total, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id, created_at`,
			item.PurchaseID, item.ProductID, item.Quantity.String(), item.UnitCost.String(), item.Total.String()).
			Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return err
		}
		return updateTotal(ctx, tx, item.PurchaseID, total)
	})
	if err != nil {
		return PurchaseItem{}, err
	}
	return item, nil
}

func (r *Repository) UpdateItem(ctx context.Context, item PurchaseItem, total decimal.Decimal) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE purchase_items SET product_id=$3, quantity=$4, unit_cost=$5, total=$6
WHERE id=$1 AND purchase_id=$2`,
			item.ID, item.PurchaseID, item.ProductID, item.Quantity.String(), item.UnitCost.String(), item.Total.String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrPurchaseNotFound
		}
		return updateTotal(ctx, tx, item.PurchaseID, total)
	})
}

func (r *Repository) DeleteItem(ctx context.Context, purchaseID, itemID int64, total decimal.Decimal) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM purchase_items WHERE id=$1 AND purchase_id=$2`, itemID, purchaseID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrPurchaseNotFound
		}
		return updateTotal(ctx, tx, purchaseID, total)
	})
}

// AddPaid increments the paid total and derives the status in one statement,
// so concurrent payments serialise on the row instead of overwriting each
// other's read.
func (r *Repository) AddPaid(ctx context.Context, id int64, amount decimal.Decimal) (Purchase, error) {
	var purchase Purchase
	var status, total, paid string
	err := r.pool.QueryRow(ctx, `UPDATE purchases SET paid = paid + $2,
	status = CASE WHEN paid + $2 >= total THEN 'paid' WHEN paid + $2 = 0 THEN 'unpaid' ELSE 'partial' END,
	updated_at = NOW()
WHERE id=$1
RETURNING id, invoice_no, supplier_id, status, total::text, paid::text, description, created_at, updated_at`,
		id, amount.String()).
		Scan(&purchase.ID, &purchase.InvoiceNo, &purchase.SupplierID, &status, &total, &paid, &purchase.Description, &purchase.CreatedAt, &purchase.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	purchase.Status = Status(status)
	if purchase.Total, err = decimal.NewFromString(total); err != nil {
		return Purchase{}, err
	}
	if purchase.Paid, err = decimal.NewFromString(paid); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

func updateTotal(ctx context.Context, tx pgx.Tx, purchaseID int64, total decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `UPDATE purchases SET total=$2, updated_at=NOW() WHERE id=$1`, purchaseID, total.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func scanItemDecimals(item PurchaseItem, qty, cost, total string) (PurchaseItem, error) {
	var err error
	if item.Quantity, err = decimal.NewFromString(qty); err != nil {
		return PurchaseItem{}, err
	}
	if item.UnitCost, err = decimal.NewFromString(cost); err != nil {
		return PurchaseItem{}, err
	}
	if item.Total, err = decimal.NewFromString(total); err != nil {
		return PurchaseItem{}, err
	}
	return item, nil
}
