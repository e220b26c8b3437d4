package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/httpx"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// Handler wires HTTP endpoints for stock movements.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the stock-card and manual movement endpoints under an
// existing /products subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/stock-card", h.handleStockCard)
	r.Post("/{id}/movements", h.handleMovement)
}

type movementRequest struct {
	Kind        string          `json:"kind" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Negative    bool            `json:"negative"`
	Description string          `json:"description" validate:"max=500"`
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid product id")
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "kind is required")
		return
	}
	// Sale and purchase movements only ever arrive through their invoices.
	kind := MovementKind(req.Kind)
	switch kind {
	case MovementRefund, MovementAdjustment, MovementMiscellaneous:
	default:
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "only refund, adjustment and miscellaneous movements can be posted directly")
		return
	}
	movement, err := h.service.RecordMovement(r.Context(), MovementInput{
		ProductID:   productID,
		Kind:        kind,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Negative:    req.Negative,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Warn("record stock movement",
			slog.Int64("product_id", productID),
			slog.String("kind", req.Kind),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, movement, "movement recorded")
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid product id")
		return
	}
	filter := StockCardFilter{ProductID: productID}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if filter.Limit, err = strconv.Atoi(limitStr); err != nil || filter.Limit < 0 {
			httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid limit")
			return
		}
	}
	movements, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, movements, "")
}
