package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/db"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// TxRepository exposes transactional operations used by the service. The
// stock read takes a row lock so the resolved quantity stays valid until
// commit.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	InsertMovement(ctx context.Context, movement StockMovement) (StockMovement, error)
	UpdateProductStock(ctx context.Context, stock ProductStock) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	StockCard(ctx context.Context, filter StockCardFilter) ([]StockMovement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock movements and the product aggregate.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	allowNeg    bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service. audit and idem may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, allowNeg: cfg.AllowNegativeStock}
}

// RecordMovement appends one stock movement and updates the product
// aggregate as one atomic unit.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (StockMovement, error) {
	if err := validateMovementInput(input); err != nil {
		return StockMovement{}, err
	}
	sign, _ := movementSign(input.Kind, input.Negative)
	delta := input.Quantity.Mul(sign)

	key := ""
	if input.InvoiceRef != "" {
		key = fmt.Sprintf("%s:%s:%d", input.Kind, input.InvoiceRef, input.ProductID)
		if s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					return StockMovement{}, shared.Conflictf("movement %s already recorded", key)
				}
				return StockMovement{}, shared.Internal(err, "idempotency check failed")
			}
		}
	}

	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.applyMovement(ctx, tx, input, delta)
		return err
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, key)
		}
		return StockMovement{}, s.mapError(err)
	}

	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("inventory:%s", input.Kind), movement)
	return movement, nil
}

// ApplyItemDelta reconciles stock with a line-item create, edit or delete.
// Same-product edits apply the quantity difference in one step; a product
// switch undoes the old product's effect and applies the full new quantity.
func (s *Service) ApplyItemDelta(ctx context.Context, input ItemDelta) ([]StockMovement, error) {
	if input.Kind != MovementSale && input.Kind != MovementPurchase {
		return nil, shared.InvalidArgumentf("item delta kind must be sale or purchase")
	}
	if input.OldProductID == 0 && input.NewProductID == 0 {
		return nil, shared.InvalidArgumentf("product required")
	}
	if input.OldQuantity.IsNegative() || input.NewQuantity.IsNegative() {
		return nil, shared.InvalidArgumentf("quantities must not be negative")
	}

	sign, _ := movementSign(input.Kind, false)
	var movements []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements = movements[:0]
		if input.OldProductID != 0 && input.OldProductID == input.NewProductID {
			delta := input.NewQuantity.Sub(input.OldQuantity).Mul(sign)
			if delta.IsZero() {
				return nil
			}
			m, err := s.applyMovement(ctx, tx, s.deltaInput(input, input.OldProductID), delta)
			if err != nil {
				return err
			}
			movements = append(movements, m)
			return nil
		}
		if input.OldProductID != 0 && !input.OldQuantity.IsZero() {
			undo := input.OldQuantity.Mul(sign).Neg()
			m, err := s.applyMovement(ctx, tx, s.deltaInput(input, input.OldProductID), undo)
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}
		if input.NewProductID != 0 && !input.NewQuantity.IsZero() {
			m, err := s.applyMovement(ctx, tx, s.deltaInput(input, input.NewProductID), input.NewQuantity.Mul(sign))
			if err != nil {
				return err
			}
			movements = append(movements, m)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	for _, m := range movements {
		s.recordAudit(ctx, input.ActorID, fmt.Sprintf("inventory:delta:%s", input.Kind), m)
	}
	return movements, nil
}

// ReviseProduct applies a direct price/cost/quantity edit. The edit is
// rejected when a value actually changes and no movement kind was supplied.
func (s *Service) ReviseProduct(ctx context.Context, input ReviseInput) (StockMovement, error) {
	if input.ProductID == 0 {
		return StockMovement{}, shared.InvalidArgumentf("product required")
	}
	if input.Quantity != nil && input.Quantity.IsNegative() {
		return StockMovement{}, shared.InvalidArgumentf("quantity must not be negative")
	}

	var movement StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		changed := false
		if input.Quantity != nil && !input.Quantity.Equal(stock.Quantity) {
			changed = true
		}
		if input.Cost != nil && !input.Cost.Equal(stock.Cost) {
			changed = true
		}
		if input.Price != nil && !input.Price.Equal(stock.Price) {
			changed = true
		}
		if !changed {
			movement = StockMovement{ProductID: input.ProductID, StockAfter: stock.Quantity}
			return nil
		}
		switch input.Kind {
		case MovementRefund, MovementAdjustment, MovementMiscellaneous:
		default:
			return shared.InvalidArgumentf("a transaction kind is required when price, cost or quantity changes")
		}

		now := time.Now().UTC()
		if input.Cost != nil && !input.Cost.Equal(stock.Cost) {
			stock.PreviousCost = stock.Cost
			stock.Cost = *input.Cost
		}
		if input.Price != nil && !input.Price.Equal(stock.Price) {
			stock.PreviousPrice = stock.Price
			stock.Price = *input.Price
		}
		delta := decimal.Zero
		if input.Quantity != nil {
			delta = input.Quantity.Sub(stock.Quantity)
		}
		newQty := stock.Quantity.Add(delta)
		if !s.allowNeg && newQty.IsNegative() {
			return ErrNegativeStock
		}
		stock.Quantity = newQty
		stock.UpdatedAt = now

		movement, err = tx.InsertMovement(ctx, StockMovement{
			ProductID:        input.ProductID,
			Kind:             input.Kind,
			Quantity:         delta,
			StockAfter:       newQty,
			UnitPrice:        stock.Cost,
			CostPrice:        stock.Cost,
			SellPrice:        stock.Price,
			AvgPrice:         stock.AvgPrice,
			PreviousCost:     stock.PreviousCost,
			PreviousPrice:    stock.PreviousPrice,
			PreviousAvgPrice: stock.PreviousAvgPrice,
			TotalAmount:      delta.Abs().Mul(stock.Cost),
			Description:      input.Description,
			CreatedAt:        now,
		})
		if err != nil {
			return err
		}
		return tx.UpdateProductStock(ctx, stock)
	})
	if err != nil {
		return StockMovement{}, s.mapError(err)
	}
	if movement.ID != 0 {
		s.recordAudit(ctx, input.ActorID, "inventory:revise", movement)
	}
	return movement, nil
}

// StockCard lists movements for one product.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]StockMovement, error) {
	if filter.ProductID == 0 {
		return nil, shared.InvalidArgumentf("product required")
	}
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	movements, err := s.repo.StockCard(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return movements, nil
}

// applyMovement resolves the locked stock row, computes the new quantity and
// cost snapshot, appends the movement and updates the aggregate. It is safe
// to call more than once inside one transaction.
func (s *Service) applyMovement(ctx context.Context, tx TxRepository, input MovementInput, delta decimal.Decimal) (StockMovement, error) {
	stock, err := tx.GetStockForUpdate(ctx, input.ProductID)
	if err != nil {
		return StockMovement{}, err
	}

	newQty := stock.Quantity.Add(delta)
	if !s.allowNeg && newQty.IsNegative() {
		return StockMovement{}, ErrNegativeStock
	}

	now := time.Now().UTC()
	if input.Kind == MovementPurchase && delta.IsPositive() {
		// Weighted average cost over the inbound quantity.
		newAvg := decimal.Zero
		if !newQty.IsZero() {
			total := stock.Quantity.Mul(stock.Cost).Add(delta.Mul(input.UnitPrice))
			newAvg = total.Div(newQty).Round(4)
		}
		if !input.UnitPrice.Equal(stock.Cost) {
			stock.PreviousCost = stock.Cost
			stock.Cost = input.UnitPrice
		}
		if !newAvg.Equal(stock.AvgPrice) {
			stock.PreviousAvgPrice = stock.AvgPrice
			stock.AvgPrice = newAvg
		}
	}
	stock.Quantity = newQty
	stock.UpdatedAt = now

	movement, err := tx.InsertMovement(ctx, StockMovement{
		ProductID:        stock.ProductID,
		Kind:             input.Kind,
		Quantity:         delta,
		StockAfter:       newQty,
		UnitPrice:        input.UnitPrice,
		CostPrice:        stock.Cost,
		SellPrice:        stock.Price,
		AvgPrice:         stock.AvgPrice,
		PreviousCost:     stock.PreviousCost,
		PreviousPrice:    stock.PreviousPrice,
		PreviousAvgPrice: stock.PreviousAvgPrice,
		CounterpartyID:   input.CounterpartyID,
		InvoiceRef:       input.InvoiceRef,
		TotalAmount:      delta.Abs().Mul(input.UnitPrice),
		Description:      input.Description,
		CreatedAt:        now,
	})
	if err != nil {
		return StockMovement{}, err
	}
	if err := tx.UpdateProductStock(ctx, stock); err != nil {
		return StockMovement{}, err
	}
	return movement, nil
}

func (s *Service) deltaInput(input ItemDelta, productID int64) MovementInput {
	return MovementInput{
		ProductID:      productID,
		Kind:           input.Kind,
		UnitPrice:      input.UnitPrice,
		CounterpartyID: input.CounterpartyID,
		InvoiceRef:     input.InvoiceRef,
		Description:    input.Description,
		ActorID:        input.ActorID,
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, movement StockMovement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", movement.ID),
		Meta: map[string]any{
			"product_id":  movement.ProductID,
			"quantity":    movement.Quantity.String(),
			"stock_after": movement.StockAfter.String(),
		},
	})
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, ErrStockNotFound):
		return shared.NewError(shared.CodeNotFound, err, "product not found")
	case errors.Is(err, ErrNegativeStock):
		return shared.NewError(shared.CodeInvalidArgument, err, "insufficient stock")
	case errors.Is(err, db.ErrTxRetriesExhausted):
		return shared.NewError(shared.CodeConflict, err, "concurrent write invalidated the resolved stock")
	default:
		var coded *shared.Error
		if errors.As(err, &coded) {
			return err
		}
		return shared.Internal(err, "stock write failed")
	}
}

func validateMovementInput(input MovementInput) error {
	if input.ProductID == 0 {
		return shared.InvalidArgumentf("product required")
	}
	if !input.Quantity.IsPositive() {
		return shared.InvalidArgumentf("quantity must be greater than zero")
	}
	if input.UnitPrice.IsNegative() {
		return shared.InvalidArgumentf("unit price must not be negative")
	}
	if _, ok := movementSign(input.Kind, input.Negative); !ok {
		return shared.InvalidArgumentf("unknown movement kind %q", input.Kind)
	}
	if input.Negative && input.Kind != MovementAdjustment && input.Kind != MovementMiscellaneous {
		return shared.InvalidArgumentf("negative sign only applies to adjustment and miscellaneous moves")
	}
	return nil
}
