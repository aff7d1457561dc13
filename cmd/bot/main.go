package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bot/internal/api/http"
	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/cache"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/persistence"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/session"
	"github.com/spec-kit/ticket-bot/internal/surface"
	"github.com/spec-kit/ticket-bot/internal/worker"
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

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var repo repository.TicketRepository
	if pool := pg.PoolHandle(); pool != nil {
		repo = repository.NewPostgresTicketRepository(pool)
	} else {
		logger.Warn("running with in-memory ticket storage; tickets do not survive restarts")
		repo = repository.NewMemoryTicketRepository()
	}

	// The platform adapter plugs in here. The log surface keeps the
	// engine runnable end to end without a chat connection.
	surf := surface.NewLogSurface(cfg.Rules.ForumChannelID, logger)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewActivityLogger(dispatcher, logger)

	tags := cache.NewTagCache(redis.Client, surf, logger)
	if err := tags.Refresh(ctx); err != nil {
		logger.Warn("initial tag cache refresh failed", zap.Error(err))
	}

	tickets := service.NewTicketService(service.TicketDependencies{
		Repo:       repo,
		Surface:    surf,
		Rules:      cfg.Rules,
		Tags:       tags,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	sessions := session.NewStore(cfg.Sweeps.SessionTTL(), logger)
	sessions.StartJanitor(ctx, time.Minute)
	conversations := session.NewManager(sessions, tickets, surf, cfg.Rules, logger)
	tickets.SetSessionClearer(conversations)

	botUser := surface.User{ID: "system", Name: cfg.App.Name}
	sweeper := worker.NewSweeper(logger, metrics)
	if cfg.Rules.RemindersEnabled {
		interval := time.Duration(cfg.Sweeps.ReminderIntervalMinutes) * time.Minute
		if err := sweeper.AddJob("reminders", interval, func(ctx context.Context) {
			tickets.SendReminders(ctx)
		}); err != nil {
			logger.Fatal("failed to schedule reminder sweep", zap.Error(err))
		}
	}
	if cfg.Rules.AutoCloseEnabled {
		interval := time.Duration(cfg.Sweeps.StaleCloseIntervalMinutes) * time.Minute
		if err := sweeper.AddJob("stale-close", interval, func(ctx context.Context) {
			tickets.CloseStaleTickets(ctx, botUser)
		}); err != nil {
			logger.Fatal("failed to schedule stale-close sweep", zap.Error(err))
		}
	}
	if cfg.Rules.PurgeClosedEnabled {
		interval := time.Duration(cfg.Sweeps.PurgeIntervalMinutes) * time.Minute
		if err := sweeper.AddJob("purge-closed", interval, func(ctx context.Context) {
			tickets.PurgeOldClosedTickets(ctx)
		}); err != nil {
			logger.Fatal("failed to schedule retention sweep", zap.Error(err))
		}
	}
	sweeper.Start()
	defer sweeper.Stop()

	tokens := auth.NewTokenManager(cfg.Ops.JWTSecret, cfg.Ops.AccessTokenTTLMinutes)

	healthPG := pg
	if pg.PoolHandle() == nil {
		healthPG = nil
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, 30*time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthPG, redis),
		Auth:           handlers.NewAuthHandler(tokens, cfg.Ops),
		Tickets:        handlers.NewTicketsHandler(tickets, metrics),
		AuthMiddleware: auth.NewMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	logger.Info("ops api listening", zap.String("addr", cfg.App.Addr()))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
