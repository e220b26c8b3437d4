package products

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
	"github.com/warungbooks/warungbooks/internal/platform/db"
	internalShared "github.com/warungbooks/warungbooks/internal/shared"
)

// ErrNotFound indicates the product does not exist or was deleted.
var ErrNotFound = errors.New("products: not found")

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, input CreateInput) (Product, error)
	UpdateIdentity(ctx context.Context, id int64, name, unit string) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const selectColumns = `id, sku, name, unit, quantity::text, cost::text, price::text, avg_price::text, previous_cost::text, previous_price::text, previous_avg_price::text, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	filters = filters.Clamp()
	search := "%" + filters.Search + "%"

	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE deleted_at IS NULL AND ($1 = '%%' OR name ILIKE $1 OR sku ILIKE $1)`, search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM products
WHERE deleted_at IS NULL AND ($1 = '%%' OR name ILIKE $1 OR sku ILIKE $1)
ORDER BY name LIMIT $2 OFFSET $3`, search, filters.PerPage, filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Product
	for rows.Next() {
		product, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, product)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	product, err := scan(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM products WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return product, nil
}

func (r *repository) Create(ctx context.Context, input CreateInput) (Product, error) {
	product := Product{
		SKU:      input.SKU,
		Name:     input.Name,
		Unit:     input.Unit,
		Quantity: decimal.Zero,
		Cost:     input.Cost,
		Price:    input.Price,
		AvgPrice: input.Cost,
	}
	err := r.db.QueryRow(ctx, `INSERT INTO products (sku, name, unit, quantity, cost, price, avg_price, previous_cost, previous_price, previous_avg_price, created_at, updated_at)
VALUES ($1,$2,$3,0,$4,$5,$4,0,0,0,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		input.SKU, input.Name, input.Unit, input.Cost.String(), input.Price.String()).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, internalShared.Conflictf("sku %s already used", input.SKU)
		}
		return Product{}, err
	}
	return product, nil
}

func (r *repository) UpdateIdentity(ctx context.Context, id int64, name, unit string) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET name=$2, unit=$3, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id, name, unit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes; movements referencing the product stay intact.
func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
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

func scan(row rowScanner) (Product, error) {
	var p Product
	fields := make([]string, 7)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &fields[5], &fields[6], &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	for i, dst := range []*decimal.Decimal{&p.Quantity, &p.Cost, &p.Price, &p.AvgPrice, &p.PreviousCost, &p.PreviousPrice, &p.PreviousAvgPrice} {
		if *dst, err = decimal.NewFromString(fields[i]); err != nil {
			return Product{}, err
		}
	}
	return p, nil
}
