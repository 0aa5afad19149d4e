package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/healthbridge/verification-service/internal/api/http"
	"github.com/healthbridge/verification-service/internal/api/http/handlers"
	"github.com/healthbridge/verification-service/internal/auth"
	"github.com/healthbridge/verification-service/internal/config"
	"github.com/healthbridge/verification-service/internal/events"
	"github.com/healthbridge/verification-service/internal/observability"
	"github.com/healthbridge/verification-service/internal/oracle"
	"github.com/healthbridge/verification-service/internal/persistence"
	"github.com/healthbridge/verification-service/internal/repository"
	"github.com/healthbridge/verification-service/internal/service"
	"github.com/healthbridge/verification-service/internal/throttle"
	"github.com/healthbridge/verification-service/internal/timing"
	"github.com/healthbridge/verification-service/internal/worker"
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

	pool := pg.PoolHandle()
	sessionRepo := repository.NewSessionRepository(pool)
	tanRepo := repository.NewTanRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range []events.EventType{
		events.SessionRegistered, events.TanIssued, events.TeleTanIssued, events.TanRedeemed,
	} {
		dispatcher.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			metrics.RecordEvent(string(event.Type))
			return nil
		})
	}

	hasher := service.NewHashingService()
	format := service.NewFormat(cfg.Tan)
	delays := timing.NewEqualizer(cfg.FakeDelay.InitialMilliseconds, cfg.FakeDelay.MovingAverageSample)
	resulter := oracle.NewClient(cfg.Oracle, logger)
	verifier := auth.NewTokenVerifier(cfg.Auth, logger)

	limits := throttle.Limits{
		Count:       cfg.Tan.TeleRateLimitCount,
		Window:      cfg.Tan.Window(),
		WarnPercent: cfg.Tan.TeleRateWarnPercent,
	}
	var teleTanThrottle throttle.Throttle
	if err := redis.Ping(ctx); err == nil {
		teleTanThrottle = throttle.NewRedisThrottle(redis.Client, limits, logger)
	} else {
		logger.Warn("redis unavailable, falling back to stored-credential throttle", zap.Error(err))
		teleTanThrottle = throttle.NewCounterThrottle(tanRepo, limits, logger)
	}

	sessionService := service.NewSessionService(*cfg, service.SessionDependencies{
		SessionRepo: sessionRepo,
		TanRepo:     tanRepo,
		Hasher:      hasher,
		Format:      format,
		Dispatcher:  dispatcher,
	}, logger)
	tanService := service.NewTanService(*cfg, service.TanDependencies{
		TanRepo:    tanRepo,
		Sessions:   sessionService,
		Resulter:   resulter,
		Authorizer: verifier,
		Throttle:   teleTanThrottle,
		Hasher:     hasher,
		Format:     format,
		Dispatcher: dispatcher,
	}, logger)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.BodySizeLimit, cfg.App.RequestTimeout())

	fakeResponder := handlers.NewFakeResponder(delays)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		External:    cfg.App.ServesExternal(),
		Internal:    cfg.App.ServesInternal(),
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Token:       handlers.NewTokenHandler(sessionService, fakeResponder, delays),
		Tan:         handlers.NewTanHandler(sessionService, tanService, fakeResponder, delays),
		TestResult:  handlers.NewTestResultHandler(sessionService, resulter, fakeResponder, delays),
		InternalTan: handlers.NewInternalTanHandler(tanService),
	})

	if cfg.Cleanup.Enabled {
		cleanup := worker.NewCleanupWorker(sessionRepo, tanRepo, worker.NewRedisLocker(redis.Client), cfg.Cleanup, logger)
		go cleanup.Run(ctx)
	}

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
