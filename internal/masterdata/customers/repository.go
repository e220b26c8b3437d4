package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
)

// ErrNotFound indicates the customer does not exist.
var ErrNotFound = errors.New("customers: not found")

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, id int64, customer Customer) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const selectColumns = `id, name, phone, address, opening_balance::text, current_balance::text, receivable::text, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	filters = filters.Clamp()
	search := "%" + filters.Search + "%"

	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE deleted_at IS NULL AND ($1 = '%%' OR name ILIKE $1 OR phone ILIKE $1)`, search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM customers
WHERE deleted_at IS NULL AND ($1 = '%%' OR name ILIKE $1 OR phone ILIKE $1)
ORDER BY name LIMIT $2 OFFSET $3`, search, filters.PerPage, filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Customer
	for rows.Next() {
		customer, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, customer)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	customer, err := scan(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM customers WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return customer, nil
}

func (r *repository) Create(ctx context.Context, customer Customer) (Customer, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO customers (name, phone, address, opening_balance, current_balance, receivable, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4,0,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		customer.Name, customer.Phone, customer.Address, customer.OpeningBalance.String()).
		Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	customer.CurrentBalance = customer.OpeningBalance
	customer.Receivable = decimal.Zero
	return customer, nil
}

func (r *repository) Update(ctx context.Context, id int64, customer Customer) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET name=$2, phone=$3, address=$4, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`,
		id, customer.Name, customer.Phone, customer.Address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (Customer, error) {
	var c Customer
	var opening, current, receivable string
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &opening, &current, &receivable, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	if c.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return Customer{}, err
	}
	if c.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return Customer{}, err
	}
	if c.Receivable, err = decimal.NewFromString(receivable); err != nil {
		return Customer{}, err
	}
	return c, nil
}
