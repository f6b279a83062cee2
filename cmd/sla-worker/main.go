package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/civickit/municipal-ticketing/internal/config"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/persistence"
	"github.com/civickit/municipal-ticketing/internal/repository"
	"github.com/civickit/municipal-ticketing/internal/service"
	"github.com/civickit/municipal-ticketing/internal/worker"
)

// Standalone SLA scan worker. Deployable separately from the API so
// scan load and API traffic scale independently; the Redis cycle lock
// keeps concurrent instances from double-scanning.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	store := repository.NewStore(pg.PoolHandle())
	dispatcher := events.NewInMemoryDispatcher()

	slaService := service.NewSLAService(store, logger)
	escalations := service.NewEscalationService(service.EscalationDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	scanLock, err := worker.NewRedisCycleLock(redis.Client, cfg.Scan.LockKey, cfg.Scan.LockTTL())
	if err != nil {
		logger.Fatal("failed to build scan lock", zap.Error(err))
	}
	scanWorker := worker.NewSLAScanWorker(worker.ScanDependencies{
		Store:       store,
		SLA:         slaService,
		Escalations: escalations,
		Lock:        scanLock,
		Logger:      logger,
		Interval:    cfg.Scan.Interval(),
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("sla scan worker starting",
		zap.Duration("interval", cfg.Scan.Interval()))
	if err := scanWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("sla scan worker stopped", zap.Error(err))
	}
}
