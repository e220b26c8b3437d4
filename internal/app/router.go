package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/warungbooks/warungbooks/internal/expenses"
	"github.com/warungbooks/warungbooks/internal/inventory"
	"github.com/warungbooks/warungbooks/internal/ledger"
	"github.com/warungbooks/warungbooks/internal/masterdata/customers"
	"github.com/warungbooks/warungbooks/internal/masterdata/products"
	"github.com/warungbooks/warungbooks/internal/masterdata/suppliers"
	"github.com/warungbooks/warungbooks/internal/observability"
	"github.com/warungbooks/warungbooks/internal/purchases"
	"github.com/warungbooks/warungbooks/internal/sales"
	"github.com/warungbooks/warungbooks/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledger.Handler
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	PurchasesHandler *purchases.Handler
	CustomersHandler *customers.Handler
	SuppliersHandler *suppliers.Handler
	ProductsHandler  *products.Handler
	ExpensesHandler  *expenses.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/customers", func(sub chi.Router) {
			params.CustomersHandler.MountRoutes(sub)
			params.LedgerHandler.MountCounterpartyRoutes(sub, ledger.KindCustomer)
		})
		api.Route("/suppliers", func(sub chi.Router) {
			params.SuppliersHandler.MountRoutes(sub)
			params.LedgerHandler.MountCounterpartyRoutes(sub, ledger.KindSupplier)
		})
		api.Route("/products", func(sub chi.Router) {
			params.ProductsHandler.MountRoutes(sub)
			params.InventoryHandler.MountRoutes(sub)
		})
		api.Route("/sales", params.SalesHandler.MountRoutes)
		api.Route("/purchases", params.PurchasesHandler.MountRoutes)
		api.Route("/main-account", params.LedgerHandler.MountMainAccountRoutes)
		api.Route("/expenses", params.ExpensesHandler.MountRoutes)
	})

	return r
}
