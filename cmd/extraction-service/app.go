package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"sift/internal/config"
	"sift/internal/constants"
	"sift/internal/dedup"
	"sift/internal/extraction"
	"sift/internal/logger"
	"sift/internal/tenant"
	"sift/pkg/bootstrap"
	"sift/pkg/health"
	"sift/pkg/logging"
	"sift/pkg/metrics"
	"sift/pkg/middleware"
	"sift/pkg/migrations"
	"sift/pkg/models"
	"sift/pkg/ratelimit"
	"sift/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	db             *sql.DB
	service        *extraction.Service
	dedupService   *dedup.Service
	outbox         *extraction.OutboxSweeper
	router         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("extraction-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker("extraction-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "extraction-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterExtractionMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	a.initService()

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: a.router,
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("postgres configuration is required")
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		migrationsPath := a.Config.Database.MigrationsPath
		if migrationsPath == "" {
			migrationsPath = "migrations/postgres"
		}
		if err := migrations.RunPostgres(db, migrationsPath); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Logger.InfowCtx(ctx, "Database migrations applied", "path", migrationsPath)
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	return nil
}

func (a *App) initService() {
	repo := extraction.NewRepository(a.db)
	audit := tenant.NewAuditLogger(a.db, a.Logger)
	guard := tenant.NewGuard(audit, a.Logger)

	var cacheRepo dedup.Repository = dedup.NewRepository(a.redis)
	if a.Config.CircuitBreaker.Enabled {
		cacheRepo = dedup.NewCircuitBreakerRepository(cacheRepo, a.Config.CircuitBreaker)
	}
	a.dedupService = dedup.NewService(cacheRepo, repo, a.Config.Extraction.Dedup, a.Logger)

	var conns []extraction.Connector
	for _, source := range a.Config.Extraction.MemorySources {
		conns = append(conns, extraction.NewMemoryConnector(models.SourceType(source)))
	}
	connectors := extraction.NewRegistry(conns...)
	if len(conns) > 0 {
		a.Logger.Infow("In-memory source connectors registered", "sources", a.Config.Extraction.MemorySources)
	}

	a.service = extraction.NewService(
		repo,
		a.dedupService,
		a.Producer,
		connectors,
		guard,
		audit,
		a.Config.Extraction.IngestWorkers,
		a.Logger,
	)

	a.outbox = extraction.NewOutboxSweeper(
		repo,
		a.Producer,
		time.Duration(a.Config.Extraction.Outbox.IntervalSeconds)*time.Second,
		a.Config.Extraction.Outbox.BatchSize,
		a.Logger,
	)
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("extraction-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.Extraction.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.Extraction.RateLimit.RPS,
			Burst:           a.Config.Extraction.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.Extraction.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.Extraction.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.InfowCtx(context.Background(), "Rate limiting enabled",
			"rps", rateLimitConfig.RPS,
			"burst", rateLimitConfig.Burst,
		)
	}

	handler := extraction.NewHandler(a.service, a.Logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	healthRegistry.Register(health.NewRedisChecker(a.redis))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.outbox.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "extraction-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down extraction service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			srvCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(srvCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.dedupService != nil {
			a.dedupService.StopCacheMetricsUpdater()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, nil)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
