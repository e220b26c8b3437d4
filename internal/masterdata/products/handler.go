package products

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/masterdata/shared"
	"github.com/warungbooks/warungbooks/internal/platform/httpx"
	internalShared "github.com/warungbooks/warungbooks/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the CRUD endpoints; the stock-card route is mounted
// on the same subtree by the inventory handler.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

type createRequest struct {
	SKU   string          `json:"sku" validate:"required,max=64"`
	Name  string          `json:"name" validate:"required,max=200"`
	Unit  string          `json:"unit" validate:"max=32"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
}

type updateRequest struct {
	Name         string           `json:"name" validate:"required,max=200"`
	Unit         string           `json:"unit" validate:"max=32"`
	MovementKind string           `json:"movementKind" validate:"max=32"`
	Quantity     *decimal.Decimal `json:"quantity"`
	Cost         *decimal.Decimal `json:"cost"`
	Price        *decimal.Decimal `json:"price"`
	Description  string           `json:"description" validate:"max=500"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, internalShared.CodeInvalidArgument, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, internalShared.CodeInvalidArgument, "sku and name are required")
		return
	}
	product, err := h.service.Create(r.Context(), CreateInput{
		SKU:   req.SKU,
		Name:  req.Name,
		Unit:  req.Unit,
		Cost:  req.Cost,
		Price: req.Price,
	})
	if err != nil {
		h.logger.Warn("create product", slog.String("sku", req.SKU), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, product, "product created")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := shared.ListFilters{Search: q.Get("search")}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PerPage, _ = strconv.Atoi(q.Get("perPage"))
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters = filters.Clamp()
	httpx.OK(w, map[string]any{
		"products":   list,
		"pagination": internalShared.NewPagination(filters.Page, filters.PerPage, total),
	}, "")
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, product, "")
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, internalShared.CodeInvalidArgument, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, internalShared.CodeInvalidArgument, "name is required")
		return
	}
	product, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:         req.Name,
		Unit:         req.Unit,
		MovementKind: req.MovementKind,
		Quantity:     req.Quantity,
		Cost:         req.Cost,
		Price:        req.Price,
		Description:  req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, product, "product updated")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil, "product deleted")
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, internalShared.CodeInvalidArgument, "invalid id")
		return 0, false
	}
	return id, true
}
