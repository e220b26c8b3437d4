package suppliers

import (
	"context"
	"errors"

	internalShared "github.com/warungbooks/warungbooks/internal/shared"

	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
)

// Service validates and persists supplier aggregates. Balances are owned by
// the ledger; only identity fields pass through here.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	supplier, err := s.repo.Get(ctx, id)
	if err != nil {
		return Supplier{}, mapError(err)
	}
	return supplier, nil
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if supplier.Name == "" {
		return Supplier{}, internalShared.InvalidArgumentf("name required")
	}
	if supplier.OpeningBalance.IsNegative() {
		return Supplier{}, internalShared.InvalidArgumentf("opening balance must not be negative")
	}
	created, err := s.repo.Create(ctx, supplier)
	if err != nil {
		return Supplier{}, mapError(err)
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) error {
	if supplier.Name == "" {
		return internalShared.InvalidArgumentf("name required")
	}
	return mapError(s.repo.Update(ctx, id, supplier))
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return mapError(s.repo.Delete(ctx, id))
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return internalShared.NewError(internalShared.CodeNotFound, err, "supplier not found")
	default:
		var coded *internalShared.Error
		if errors.As(err, &coded) {
			return err
		}
		return internalShared.Internal(err, "supplier write failed")
	}
}
