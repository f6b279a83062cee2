package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/civickit/municipal-ticketing/internal/api/http"
	"github.com/civickit/municipal-ticketing/internal/api/http/handlers"
	"github.com/civickit/municipal-ticketing/internal/auth"
	"github.com/civickit/municipal-ticketing/internal/config"
	"github.com/civickit/municipal-ticketing/internal/events"
	"github.com/civickit/municipal-ticketing/internal/observability"
	"github.com/civickit/municipal-ticketing/internal/persistence"
	"github.com/civickit/municipal-ticketing/internal/repository"
	"github.com/civickit/municipal-ticketing/internal/service"
	"github.com/civickit/municipal-ticketing/internal/worker"
)

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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	store := repository.NewStore(pg.PoolHandle())
	dispatcher := events.NewInMemoryDispatcher()

	routing := service.NewRoutingService(store, logger, metrics)
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		Store:      store,
		Routing:    routing,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	slaService := service.NewSLAService(store, logger)
	escalations := service.NewEscalationService(service.EscalationDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:       store,
		Assignments: assignments,
		SLA:         slaService,
		Dispatcher:  dispatcher,
		Logger:      logger,
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
		if err := scanWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sla scan worker stopped", zap.Error(err))
		}
	}()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(tickets, assignments, escalations),
		Ops:            handlers.NewOpsHandler(slaService, scanWorker),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
