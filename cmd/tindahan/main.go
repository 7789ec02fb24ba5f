package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tindahan-erp/tindahan/internal/app"
	"github.com/tindahan-erp/tindahan/internal/inventory"
	"github.com/tindahan-erp/tindahan/internal/ledger"
	"github.com/tindahan-erp/tindahan/internal/platform/cache"
	"github.com/tindahan-erp/tindahan/internal/platform/db"
	"github.com/tindahan-erp/tindahan/internal/purchases"
	"github.com/tindahan-erp/tindahan/internal/sales"
	"github.com/tindahan-erp/tindahan/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledgerRepo := ledger.NewRepository(dbpool)
	inventoryRepo := inventory.NewRepository(dbpool)
	salesRepo := sales.NewRepository(dbpool)
	purchasesRepo := purchases.NewRepository(dbpool)

	poster := ledger.NewPoster(ledgerRepo, logger)
	engine := inventory.NewEngine(inventoryRepo, logger)

	salesAccounts, purchaseAccounts, err := resolveAccounts(ctx, ledgerRepo)
	if err != nil {
		logger.Error("resolve chart of accounts", slog.Any("error", err))
		os.Exit(1)
	}

	policy := sales.TaxPolicy{Rate: cfg.VAT(), DiscountBeforeVAT: cfg.DiscountBeforeVAT}
	salesService := sales.NewService(salesRepo, poster, engine, salesAccounts, policy, logger)
	purchasesService := purchases.NewService(purchasesRepo, poster, engine, purchaseAccounts, cfg.VAT(), logger)

	reports := cache.NewJSONCache(redisClient, cfg.ReportCacheTTL)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             dbpool,
		LedgerHandler:    ledger.NewHandler(logger, poster, reports),
		InventoryHandler: inventory.NewHandler(logger, engine),
		SalesHandler:     sales.NewHandler(logger, salesService, reports),
		PurchasesHandler: purchases.NewHandler(logger, purchasesService, reports),
		JobsHandler:      jobs.NewHandler(inspector, jobsClient, logger),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}

// resolveAccounts maps the seeded chart-of-accounts codes to ids once at
// startup so the posting flows never look codes up per request.
func resolveAccounts(ctx context.Context, repo ledger.Repository) (sales.Accounts, purchases.Accounts, error) {
	ids := make(map[string]int64)
	for _, code := range []string{"1000", "1100", "1150", "1200", "1300", "2000", "2100", "4000", "4100", "5000"} {
		account, err := repo.GetAccountByCode(ctx, code)
		if err != nil {
			return sales.Accounts{}, purchases.Accounts{}, err
		}
		ids[code] = account.ID
	}
	salesAccounts := sales.Accounts{
		Cash:               ids["1000"],
		AccountsReceivable: ids["1100"],
		CWTReceivable:      ids["1150"],
		Inventory:          ids["1200"],
		VATPayable:         ids["2100"],
		SalesRevenue:       ids["4000"],
		DiscountsAllowed:   ids["4100"],
		COGS:               ids["5000"],
	}
	purchaseAccounts := purchases.Accounts{
		Cash:            ids["1000"],
		Inventory:       ids["1200"],
		VATInput:        ids["1300"],
		AccountsPayable: ids["2000"],
	}
	return salesAccounts, purchaseAccounts, nil
}
