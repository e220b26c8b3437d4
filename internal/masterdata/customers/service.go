package customers

import (
	"context"
	"errors"

	internalShared "github.com/warungbooks/warungbooks/internal/shared"

	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
)

// Service validates and persists customer aggregates. Balances are owned by
// the ledger; only identity fields pass through here.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Customer, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	customer, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, mapError(err)
	}
	return customer, nil
}

func (s *Service) Create(ctx context.Context, customer Customer) (Customer, error) {
	if customer.Name == "" {
		return Customer{}, internalShared.InvalidArgumentf("name required")
	}
	if customer.OpeningBalance.IsNegative() {
		return Customer{}, internalShared.InvalidArgumentf("opening balance must not be negative")
	}
	created, err := s.repo.Create(ctx, customer)
	if err != nil {
		return Customer{}, mapError(err)
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, customer Customer) error {
	if customer.Name == "" {
		return internalShared.InvalidArgumentf("name required")
	}
	return mapError(s.repo.Update(ctx, id, customer))
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return mapError(s.repo.Delete(ctx, id))
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return internalShared.NewError(internalShared.CodeNotFound, err, "customer not found")
	default:
		var coded *internalShared.Error
		if errors.As(err, &coded) {
			return err
		}
		return internalShared.Internal(err, "customer write failed")
	}
}
