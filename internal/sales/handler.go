package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warungbooks/warungbooks/internal/platform/httpx"
	"github.com/warungbooks/warungbooks/internal/shared"
)

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the invoice endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/items", h.handleAddItem)
	r.Put("/{id}/items/{itemID}", h.handleUpdateItem)
	r.Delete("/{id}/items/{itemID}", h.handleDeleteItem)
	r.Post("/{id}/payments", h.handlePayment)
}

type itemRequest struct {
	ProductID int64           `json:"productId" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type createRequest struct {
	CustomerID  int64         `json:"customerId" validate:"required"`
	InvoiceNo   string        `json:"invoiceNo" validate:"required,max=64"`
	Description string        `json:"description" validate:"max=500"`
	Items       []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

type saleResponse struct {
	Sale
	Items []SaleItem `json:"items"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "customerId, invoiceNo and at least one item are required")
		return
	}
	input := CreateInput{CustomerID: req.CustomerID, InvoiceNo: req.InvoiceNo, Description: req.Description}
	for _, it := range req.Items {
		input.Items = append(input.Items, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	sale, items, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Warn("create sale", slog.String("invoice", req.InvoiceNo), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, saleResponse{Sale: sale, Items: items}, "sale recorded")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))
	filter.CustomerID, _ = strconv.ParseInt(q.Get("customerId"), 10, 64)
	list, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, map[string]any{"sales": list, "pagination": page}, "")
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	sale, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, saleResponse{Sale: sale, Items: items}, "")
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "malformed request body")
		return
	}
	item, err := h.service.AddItem(r.Context(), id, ItemInput{ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: req.UnitPrice}, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, item, "item added")
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "malformed request body")
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, itemID, ItemInput{ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: req.UnitPrice}, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, item, "item updated")
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.service.DeleteItem(r.Context(), id, itemID, 0); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, nil, "item deleted")
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "malformed request body")
		return
	}
	sale, err := h.service.RecordPayment(r.Context(), id, req.Amount, req.Description, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, sale, "payment recorded")
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid "+name)
		return 0, false
	}
	return id, true
}
