// Package expenses exposes the expense endpoint. Expense events live on the
// main-account ledger only; this package is the HTTP boundary in front of it.
package expenses

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/ledger"
	"github.com/warungbooks/warungbooks/internal/platform/httpx"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// LedgerPort records expense entries on the main account.
type LedgerPort interface {
	RecordExpense(ctx context.Context, input ledger.ExpenseInput) (ledger.MainAccountTransaction, error)
}

// Handler wires the expense endpoint.
type Handler struct {
	logger   *slog.Logger
	ledger   LedgerPort
	validate *validator.Validate
}

// NewHandler constructs the expenses handler.
func NewHandler(logger *slog.Logger, ledgerPort LedgerPort) *Handler {
	return &Handler{logger: logger, ledger: ledgerPort, validate: validator.New()}
}

// MountRoutes registers the expense endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleRecord)
}

type expenseRequest struct {
	Kind        string          `json:"kind" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "kind is required")
		return
	}
	entry, err := h.ledger.RecordExpense(r.Context(), ledger.ExpenseInput{
		Kind:        ledger.ExpenseKind(req.Kind),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Warn("record expense", slog.String("kind", req.Kind), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, entry, "expense recorded")
}
