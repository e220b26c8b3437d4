package suppliers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
)

// ErrNotFound indicates the supplier does not exist.
var ErrNotFound = errors.New("suppliers: not found")

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, id int64, supplier Supplier) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const selectColumns = `id, name, phone, address, opening_balance::text, current_balance::text, debt::text, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	filters = filters.Clamp()
	search := "%" + filters.Search + "%"

	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers WHERE deleted_at IS NULL AND ($1 = '%%' OR name ILIKE $1 OR phone ILIKE $1)`, search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM suppliers
WHERE deleted_at IS NULL AND ($1 = '%%' OR name ILIKE $1 OR phone ILIKE $1)
ORDER BY name LIMIT $2 OFFSET $3`, search, filters.PerPage, filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Supplier
	for rows.Next() {
		supplier, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, supplier)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	supplier, err := scan(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM suppliers WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrNotFound
		}
		return Supplier{}, err
	}
	return supplier, nil
}

func (r *repository) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (name, phone, address, opening_balance, current_balance, debt, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4,0,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		supplier.Name, supplier.Phone, supplier.Address, supplier.OpeningBalance.String()).
		Scan(&supplier.ID, &supplier.CreatedAt, &supplier.UpdatedAt)
	if err != nil {
		return Supplier{}, err
	}
	supplier.CurrentBalance = supplier.OpeningBalance
	supplier.Debt = decimal.Zero
	return supplier, nil
}

func (r *repository) Update(ctx context.Context, id int64, supplier Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET name=$2, phone=$3, address=$4, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`,
		id, supplier.Name, supplier.Phone, supplier.Address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
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

func scan(row rowScanner) (Supplier, error) {
	var c Supplier
	var opening, current, debt string
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &opening, &current, &debt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Supplier{}, err
	}
	if c.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return Supplier{}, err
	}
	if c.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return Supplier{}, err
	}
	if c.Debt, err = decimal.NewFromString(debt); err != nil {
		return Supplier{}, err
	}
	return c, nil
}
