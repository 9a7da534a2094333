package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/zfogg/sidechain/feedengine/internal/cache"
	"github.com/zfogg/sidechain/feedengine/internal/config"
	"github.com/zfogg/sidechain/feedengine/internal/database"
	"github.com/zfogg/sidechain/feedengine/internal/feed"
	"github.com/zfogg/sidechain/feedengine/internal/handlers"
	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/metrics"
	"github.com/zfogg/sidechain/feedengine/internal/middleware"
	"github.com/zfogg/sidechain/feedengine/internal/repository"
	"github.com/zfogg/sidechain/feedengine/internal/reputation"
	"github.com/zfogg/sidechain/feedengine/internal/stream"
	"github.com/zfogg/sidechain/feedengine/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Initialize(logger.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: cfg.Log.Console,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	if err := run(cfg); err != nil {
		logger.Log.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	logger.Log.Info("Feed engine starting",
		zap.String("version", version),
		zap.String("env", cfg.Env),
		zap.String("backend", cfg.Feed.Backend),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	flushSentry, err := telemetry.InitSentry(cfg.Telemetry, cfg.Env, version)
	if err != nil {
		// Error reporting is optional; the server runs without it.
		logger.Log.Warn("Sentry disabled", zap.Error(err))
		flushSentry = func() {}
	}
	metrics.Initialize()

	db, err := database.Initialize(cfg.Database, cfg.Env == "development")
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		// The rate limiter fails open, so Redis is not required to serve.
		logger.Log.Warn("Redis unavailable, rate limiting disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sources, err := feedSources(cfg, db)
	if err != nil {
		return err
	}

	var advisor *reputation.Advisor
	coalescerOpts := []reputation.Option{
		reputation.WithMaxBatch(cfg.Reputation.MaxBatch),
		reputation.WithDebounce(cfg.Reputation.Debounce),
		reputation.WithCacheTTL(cfg.Reputation.CacheTTL),
		reputation.WithBatchTimeout(cfg.Reputation.BatchTimeout),
		reputation.WithNegativeTTL(cfg.Reputation.NegativeTTL),
	}
	if cfg.Reputation.PersistEnabled {
		advisor = reputation.NewAdvisor(repository.NewReputationRepository(db), reputation.AdvisorOptions{
			Threshold:       cfg.Reputation.DriftThreshold,
			QueueSize:       cfg.Reputation.PersistQueue,
			Workers:         cfg.Reputation.PersistWorkers,
			WritesPerSecond: cfg.Reputation.PersistRate,
		})
		advisor.Start()
		coalescerOpts = append(coalescerOpts, reputation.WithAdvisor(advisor))
	}
	scores := reputation.NewCoalescer(repository.NewCounterRepository(db), coalescerOpts...)

	h := handlers.NewHandlers(sources, repository.NewUserRepository(db), scores, handlers.Options{
		DefaultPageSize: cfg.Feed.DefaultPageSize,
		MaxPageSize:     cfg.Feed.MaxPageSize,
		SourceTimeout:   cfg.Feed.SourceTimeout,
		EnrichmentLimit: cfg.Reputation.EnrichmentLimit,
	})
	h.AddHealthCheck("database", func(ctx context.Context) error {
		return database.Health(ctx, db)
	})
	var counter middleware.WindowCounter
	if redisClient != nil {
		counter = redisClient
		h.AddHealthCheck("redis", redisClient.Ping)
	}

	router := newRouter(cfg, h, counter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Log.Info("Feed engine listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Log.Error("Server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	scores.Close()
	if advisor != nil {
		advisor.Stop()
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Log.Warn("Tracer shutdown failed", zap.Error(err))
	}
	flushSentry()

	logger.Log.Info("Server exited")
	return nil
}

// feedSources picks the configured backend. Reputation always reads the
// database.
func feedSources(cfg *config.Config, db *gorm.DB) (handlers.FeedSources, error) {
	if cfg.Feed.Backend != config.BackendStream {
		return handlers.FeedSources{
			Global: func() feed.Source { return repository.NewGlobalFeedRepository(db) },
			Home: func(viewerID string) feed.Source {
				return repository.NewHomeFeedRepository(db, viewerID)
			},
		}, nil
	}

	client, err := stream.NewClient(cfg.Stream)
	if err != nil {
		return handlers.FeedSources{}, fmt.Errorf("failed to initialize Stream client: %w", err)
	}
	return handlers.FeedSources{
		Global: func() feed.Source { return stream.NewGlobalFeedSource(client) },
		Home: func(viewerID string) feed.Source {
			return stream.NewHomeFeedSource(client, viewerID)
		},
	}, nil
}

func newRouter(cfg *config.Config, h *handlers.Handlers, counter middleware.WindowCounter) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.TracingMiddleware(cfg.Telemetry.ServiceName)...)
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization",
		middleware.UserIDHeader, middleware.RequestIDHeader, middleware.CorrelationIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	r.Use(cors.New(corsConfig))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", h.Health)
	r.GET("/metrics", handlers.Metrics())

	api := r.Group("/api/v1")
	api.Use(middleware.ViewerAuth(cfg.Auth.JWTSecret))
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RedisRateLimitMiddleware(counter, middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimit.Requests,
			Window:      cfg.RateLimit.Window,
		}))
	}
	h.RegisterRoutes(api)
	return r
}
