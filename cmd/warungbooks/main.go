package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/warungbooks/warungbooks/internal/app"
	"github.com/warungbooks/warungbooks/internal/expenses"
	"github.com/warungbooks/warungbooks/internal/inventory"
	"github.com/warungbooks/warungbooks/internal/ledger"
	"github.com/warungbooks/warungbooks/internal/masterdata/customers"
	"github.com/warungbooks/warungbooks/internal/masterdata/products"
	"github.com/warungbooks/warungbooks/internal/masterdata/suppliers"
	"github.com/warungbooks/warungbooks/internal/observability"
	"github.com/warungbooks/warungbooks/internal/platform/cache"
	"github.com/warungbooks/warungbooks/internal/platform/db"
	"github.com/warungbooks/warungbooks/internal/purchases"
	"github.com/warungbooks/warungbooks/internal/sales"
	"github.com/warungbooks/warungbooks/internal/shared"
	"github.com/warungbooks/warungbooks/jobs"
	"github.com/warungbooks/warungbooks/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Statement caching and job inspection degrade without Redis,
		// the core ledger keeps working.
		logger.Warn("redis connect", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	if err := pdfClient.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}

	statementCache := ledger.NewStatementCache(redisClient, cfg.StatementCacheTTL)
	ledgerRepo := ledger.NewRepository(dbpool, cfg.LedgerMaxRetries)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, statementCache)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, pdfClient)

	inventoryRepo := inventory.NewRepository(dbpool, cfg.LedgerMaxRetries)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(logger, salesRepo, ledgerService, inventoryService)
	salesHandler := sales.NewHandler(logger, salesService)

	purchasesRepo := purchases.NewRepository(dbpool)
	purchasesService := purchases.NewService(logger, purchasesRepo, ledgerService, inventoryService)
	purchasesHandler := purchases.NewHandler(logger, purchasesService)

	customersService := customers.NewService(customers.NewRepository(dbpool))
	customersHandler := customers.NewHandler(logger, customersService)

	suppliersService := suppliers.NewService(suppliers.NewRepository(dbpool))
	suppliersHandler := suppliers.NewHandler(logger, suppliersService)

	productsService := products.NewService(products.NewRepository(dbpool), inventoryService)
	productsHandler := products.NewHandler(logger, productsService)

	expensesHandler := expenses.NewHandler(logger, ledgerService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("jobs client", slog.Any("error", err))
	}
	defer func() {
		if jobsClient != nil {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobsClient, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		InventoryHandler: inventoryHandler,
		SalesHandler:     salesHandler,
		PurchasesHandler: purchasesHandler,
		CustomersHandler: customersHandler,
		SuppliersHandler: suppliersHandler,
		ProductsHandler:  productsHandler,
		ExpensesHandler:  expensesHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
