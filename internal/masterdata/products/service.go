package products

import (
	"context"
	"errors"

	"github.com/warungbooks/warungbooks/internal/inventory"
	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
	internalShared "github.com/warungbooks/warungbooks/internal/shared"
)

// StockPort routes value edits through the stock engine so every change to
// quantity, cost or price leaves a movement behind.
type StockPort interface {
	ReviseProduct(ctx context.Context, input inventory.ReviseInput) (inventory.StockMovement, error)
}

type Service struct {
	repo  Repository
	stock StockPort
}

func NewService(repo Repository, stock StockPort) *Service {
	return &Service{repo: repo, stock: stock}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, mapError(err)
	}
	return product, nil
}

func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	if input.SKU == "" || input.Name == "" {
		return Product{}, internalShared.InvalidArgumentf("sku and name required")
	}
	if input.Cost.IsNegative() || input.Price.IsNegative() {
		return Product{}, internalShared.InvalidArgumentf("cost and price must not be negative")
	}
	product, err := s.repo.Create(ctx, input)
	if err != nil {
		return Product{}, mapError(err)
	}
	return product, nil
}

// Update applies identity changes directly and hands any quantity, cost or
// price change to the stock engine, which insists on a movement kind.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Product, error) {
	if input.Name == "" {
		return Product{}, internalShared.InvalidArgumentf("name required")
	}
	if err := s.repo.UpdateIdentity(ctx, id, input.Name, input.Unit); err != nil {
		return Product{}, mapError(err)
	}

	if input.Quantity != nil || input.Cost != nil || input.Price != nil {
		_, err := s.stock.ReviseProduct(ctx, inventory.ReviseInput{
			ProductID:   id,
			Kind:        inventory.MovementKind(input.MovementKind),
			Quantity:    input.Quantity,
			Cost:        input.Cost,
			Price:       input.Price,
			Description: input.Description,
			ActorID:     input.ActorID,
		})
		if err != nil {
			return Product{}, err
		}
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return mapError(s.repo.Delete(ctx, id))
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return internalShared.NewError(internalShared.CodeNotFound, err, "product not found")
	default:
		var coded *internalShared.Error
		if errors.As(err, &coded) {
			return err
		}
		return internalShared.Internal(err, "product write failed")
	}
}
