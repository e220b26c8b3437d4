package ledger

import (
	"context"
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

// PDFRenderer converts HTML into a PDF document.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler wires HTTP endpoints for the ledger module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	pdf      PDFRenderer
}

// NewHandler constructs the ledger handler. pdf may be nil; the PDF export
// then responds 503.
func NewHandler(logger *slog.Logger, service *Service, pdf PDFRenderer) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), pdf: pdf}
}

// MountCounterpartyRoutes registers the transaction endpoints under an
// existing /customers or /suppliers subtree.
func (h *Handler) MountCounterpartyRoutes(r chi.Router, counterparty CounterpartyKind) {
	r.Post("/{id}/transactions", h.handleRecord(counterparty))
	r.Get("/{id}/transactions", h.handleHistory(counterparty))
}

// MountMainAccountRoutes registers the statement endpoints.
func (h *Handler) MountMainAccountRoutes(r chi.Router) {
	r.Get("/", h.handleStatement)
	r.Get("/export.csv", h.handleExportCSV)
	r.Get("/export.pdf", h.handleExportPDF)
}

type transactionRequest struct {
	TransactionType string          `json:"transactionType" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceID     *int64          `json:"referenceId"`
	Description     string          `json:"description" validate:"max=500"`
}

func (h *Handler) handleRecord(counterparty CounterpartyKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid counterparty id")
			return
		}
		var req transactionRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "malformed request body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "transactionType is required")
			return
		}
		input := CounterpartyTransactionInput{
			CounterpartyID: id,
			Kind:           TxKind(req.TransactionType),
			Amount:         req.Amount,
			ReferenceID:    req.ReferenceID,
			Description:    req.Description,
		}
		var entry CounterpartyTransaction
		if counterparty == KindCustomer {
			entry, err = h.service.RecordCustomerTransaction(r.Context(), input)
		} else {
			entry, err = h.service.RecordSupplierTransaction(r.Context(), input)
		}
		if err != nil {
			h.logger.Warn("record counterparty transaction",
				slog.String("counterparty", string(counterparty)),
				slog.Int64("id", id),
				slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.Created(w, entry, "transaction recorded")
	}
}

func (h *Handler) handleHistory(counterparty CounterpartyKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, shared.CodeInvalidArgument, "invalid counterparty id")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := h.service.CounterpartyHistory(r.Context(), counterparty, id, limit)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.OK(w, entries, "")
	}
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStatementFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	statement, err := h.service.MainAccountStatement(r.Context(), filter)
	if err != nil {
		h.logger.Error("main account statement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, statement, "")
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStatementFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	statement, err := h.service.MainAccountStatement(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="main-account.csv"`)
	if err := WriteStatementCSV(w, normalizeFilter(filter), statement); err != nil {
		h.logger.Error("stream statement csv", slog.Any("error", err))
	}
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Error(w, http.StatusServiceUnavailable, shared.CodeInternal, "pdf renderer unavailable")
		return
	}
	filter, err := parseStatementFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	statement, err := h.service.MainAccountStatement(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	html, err := BuildStatementHTML(normalizeFilter(filter), statement)
	if err != nil {
		httpx.RespondError(w, shared.Internal(err, "render statement"))
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render statement pdf", slog.Any("error", err))
		httpx.Error(w, http.StatusServiceUnavailable, shared.CodeInternal, "pdf renderer unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="main-account.pdf"`)
	_, _ = w.Write(pdf)
}

func parseStatementFilter(r *http.Request) (StatementFilter, error) {
	var filter StatementFilter
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return StatementFilter{}, shared.InvalidArgumentf("invalid from date")
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return StatementFilter{}, shared.InvalidArgumentf("invalid to date")
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if (filter.From.IsZero()) != (filter.To.IsZero()) {
		return StatementFilter{}, shared.InvalidArgumentf("from and to must be provided together")
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return StatementFilter{}, shared.InvalidArgumentf("invalid limit")
		}
		filter.Limit = limit
	}
	filter.Ascending = q.Get("orderBy") == "asc"
	return filter, nil
}
