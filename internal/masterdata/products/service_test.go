package products

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warungbooks/warungbooks/internal/inventory"
	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
	internalShared "github.com/warungbooks/warungbooks/internal/shared"
)

type fakeRepo struct {
	products map[int64]Product
	nextID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{products: map[int64]Product{}}
}

func (r *fakeRepo) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var list []Product
	for _, p := range r.products {
		list = append(list, p)
	}
	return list, len(list), nil
}

func (r *fakeRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) Create(ctx context.Context, input CreateInput) (Product, error) {
	for _, p := range r.products {
		if p.SKU == input.SKU {
			return Product{}, internalShared.Conflictf("sku %s already used", input.SKU)
		}
	}
	r.nextID++
	p := Product{ID: r.nextID, SKU: input.SKU, Name: input.Name, Unit: input.Unit, Quantity: decimal.Zero, Cost: input.Cost, Price: input.Price, AvgPrice: input.Cost}
	r.products[p.ID] = p
	return p, nil
}

func (r *fakeRepo) UpdateIdentity(ctx context.Context, id int64, name, unit string) error {
	p, ok := r.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Name = name
	p.Unit = unit
	r.products[id] = p
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return ErrNotFound
	}
	delete(r.products, id)
	return nil
}

type fakeStock struct {
	revisions []inventory.ReviseInput
	fail      error
}

func (s *fakeStock) ReviseProduct(ctx context.Context, input inventory.ReviseInput) (inventory.StockMovement, error) {
	if s.fail != nil {
		return inventory.StockMovement{}, s.fail
	}
	s.revisions = append(s.revisions, input)
	return inventory.StockMovement{ID: int64(len(s.revisions))}, nil
}

func TestCreateSeedsZeroStock(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakeStock{})

	p, err := svc.Create(context.Background(), CreateInput{SKU: "SKU-1", Name: "Beras 5kg", Cost: decimal.RequireFromString("50"), Price: decimal.RequireFromString("60")})
	require.NoError(t, err)
	require.True(t, p.Quantity.IsZero())
	require.True(t, p.AvgPrice.Equal(p.Cost))
}

func TestDuplicateSKUConflicts(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakeStock{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "B"})
	require.Equal(t, internalShared.CodeConflict, internalShared.CodeOf(err))
}

func TestUpdateRoutesValueEditsThroughStock(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStock{}
	svc := NewService(repo, stock)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "A"})
	require.NoError(t, err)

	// Identity-only edit never touches the stock engine.
	_, err = svc.Update(ctx, p.ID, UpdateInput{Name: "A renamed"})
	require.NoError(t, err)
	require.Empty(t, stock.revisions)

	newPrice := decimal.RequireFromString("75")
	_, err = svc.Update(ctx, p.ID, UpdateInput{Name: "A renamed", MovementKind: "adjustment", Price: &newPrice})
	require.NoError(t, err)
	require.Len(t, stock.revisions, 1)
	require.Equal(t, inventory.MovementAdjustment, stock.revisions[0].Kind)
	require.True(t, stock.revisions[0].Price.Equal(newPrice))
}

func TestUpdateSurfacesStockRejection(t *testing.T) {
	repo := newFakeRepo()
	stock := &fakeStock{fail: internalShared.InvalidArgumentf("a transaction kind is required when price, cost or quantity changes")}
	svc := NewService(repo, stock)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "A"})
	require.NoError(t, err)

	newPrice := decimal.RequireFromString("75")
	_, err = svc.Update(ctx, p.ID, UpdateInput{Name: "A", Price: &newPrice})
	require.Equal(t, internalShared.CodeInvalidArgument, internalShared.CodeOf(err))
}
