package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tyrestock/stockbook/internal/config"
	"github.com/tyrestock/stockbook/internal/repository/ledger"
	"github.com/tyrestock/stockbook/internal/repository/mongodb"
	"github.com/tyrestock/stockbook/internal/repository/sheets"
	"github.com/tyrestock/stockbook/internal/scheduler"
	"github.com/tyrestock/stockbook/internal/server/handlers"
	"github.com/tyrestock/stockbook/internal/server/router"
	"github.com/tyrestock/stockbook/internal/service/notification"
	"github.com/tyrestock/stockbook/internal/service/orders"
	"github.com/tyrestock/stockbook/internal/service/stock"
	"github.com/tyrestock/stockbook/pkg/clients/mailer"
	"github.com/tyrestock/stockbook/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	var (
		stockLedger ledger.Ledger
		orderStore  orders.Store
	)
	switch cfg.Storage.Driver {
	case config.StorageMongoDB:
		connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoRepo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName,
			mongodb.WithTransactions(cfg.MongoDB.Transactions),
			mongodb.WithLogger(baseLogger))
		if err != nil {
			cancel()
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		if err := mongoRepo.EnsureIndexes(connectCtx); err != nil {
			cancel()
			baseLogger.Fatal("failed to ensure mongodb indexes", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		stockLedger, orderStore = mongoRepo, mongoRepo
	default:
		baseLogger.Warn("using in-memory storage, data is lost on restart")
		stockLedger, orderStore = ledger.NewMemory(), orders.NewMemoryStore()
	}

	var hooks []stock.SaleHook
	if cfg.Mail.Enabled() {
		hooks = append(hooks, notification.NewService(mailer.NewClient(cfg.Mail), cfg.Mail.To, baseLogger.Named("svc.notification")))
		baseLogger.Info("sale email notifications enabled")
	} else {
		baseLogger.Warn("mail api url missing, sale notifications disabled")
	}
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		hooks = append(hooks, sheets.NewSalesExporter(sheetsRepo, cfg.Sheets.SalesRange))
		baseLogger.Info("sales sheet export enabled")
	}

	stockSvc := stock.NewService(stockLedger, baseLogger.Named("svc.stock"),
		stock.WithLocation(cfg.Location()),
		stock.WithRetries(cfg.Stock.Retries),
		stock.WithHookTimeout(cfg.Stock.HookTimeout),
		stock.WithSaleHooks(hooks...))
	defer stockSvc.Close()

	orderSvc := orders.NewService(orderStore, cfg.Location(), baseLogger.Named("svc.orders"))

	engine := router.New(router.Handlers{
		Stock:         handlers.NewStockHandler(stockSvc, baseLogger.Named("handlers.stock")),
		SpecialOrders: handlers.NewSpecialOrderHandler(orderSvc, baseLogger.Named("handlers.orders")),
	}, cfg.Auth.JWTSecret, baseLogger.Named("router"))

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(cfg.Scheduler.CronSchedule, cfg.Location(), stockSvc, baseLogger.Named("scheduler"))
		if err := sched.Start(); err != nil {
			baseLogger.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
