package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helper-dispatch/internal/api"
	"helper-dispatch/internal/auth"
	"helper-dispatch/internal/config"
	"helper-dispatch/internal/database"
	"helper-dispatch/internal/dispatch"
	"helper-dispatch/internal/logger"
	"helper-dispatch/internal/monitoring"
	"helper-dispatch/internal/notification"
	"helper-dispatch/internal/registry"
	"helper-dispatch/internal/scheduler"
	"helper-dispatch/internal/store"
	"helper-dispatch/internal/tracing"
	"helper-dispatch/pkg/types"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// defaultServices seeds the catalog when no database backs it
var defaultServices = []types.Service{
	{Name: "House Cleaning", Category: "cleaning", BasePrice: 499, Active: true},
	{Name: "Plumbing", Category: "plumbing", BasePrice: 399, Active: true},
	{Name: "Electrical Repair", Category: "electrical", BasePrice: 449, Active: true},
	{Name: "Grocery Delivery", Category: "delivery", BasePrice: 99, Active: true},
	{Name: "Appliance Repair", Category: "repair", BasePrice: 549, Active: true},
}

type redisHealthChecker struct {
	client *redis.Client
}

func (r *redisHealthChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatal("Failed to create logger", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting Helper Dispatch Server...")

	reg := registry.NewMemoryRegistry(zapLogger)

	var bookings store.BookingStore
	var catalog store.ServiceCatalog
	var helperRepo *database.HelperRepository

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.NewConnection(cfg.Database, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(migrateCtx); err != nil {
			cancel()
			zapLogger.Fatal("Failed to run migrations", zap.Error(err))
		}
		cancel()

		bookings = database.NewBookingStore(db, zapLogger)

		dbCatalog := database.NewServiceCatalog(db, zapLogger)
		seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := dbCatalog.SeedServices(seedCtx, defaultServices); err != nil {
			zapLogger.Warn("Failed to seed service catalog", zap.Error(err))
		}
		cancel()
		catalog = dbCatalog

		helperRepo = database.NewHelperRepository(db, zapLogger)
		loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		helpers, err := helperRepo.LoadAll(loadCtx)
		cancel()
		if err != nil {
			zapLogger.Warn("Failed to load persisted helpers", zap.Error(err))
		} else {
			for _, h := range helpers {
				if err := reg.Load(context.Background(), h); err != nil {
					zapLogger.Warn("Failed to load helper into registry",
						zap.String("helper_id", h.ID.String()),
						zap.Error(err))
				}
			}
			zapLogger.Info("Helper roster loaded", zap.Int("count", len(helpers)))
		}
	} else {
		bookings = store.NewMemoryBookingStore(zapLogger)
		catalog = store.NewMemoryCatalog(defaultServices)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	}

	var notifier notification.Sink
	if redisClient != nil {
		notifier = notification.NewRedisSink(redisClient, zapLogger)
	} else {
		notifier = notification.NewLogSink(zapLogger)
	}

	var tracingManager *tracing.TracingManager
	if cfg.Tracing.Enabled {
		tracingManager, err = tracing.NewTracingManager(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint, zapLogger)
		if err != nil {
			zapLogger.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			zapLogger.Info("Distributed tracing initialized",
				zap.String("service", cfg.Tracing.ServiceName),
				zap.String("jaeger_endpoint", cfg.Tracing.JaegerEndpoint))
		}
	}

	var authMiddleware *auth.AuthMiddleware
	if cfg.Auth.Enabled {
		jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration, zapLogger)
		authMiddleware = auth.NewAuthMiddleware(jwtManager, zapLogger)
		zapLogger.Info("JWT authentication initialized")
	}

	var rateLimiter *auth.RateLimiter
	if cfg.RateLimit.Enabled && redisClient != nil {
		rateLimiter = auth.NewRateLimiter(redisClient, zapLogger)
		zapLogger.Info("Rate limiting initialized")
	}

	metrics := monitoring.NewMetrics(zapLogger)
	healthChecker := monitoring.NewHealthChecker(zapLogger)
	if db != nil {
		healthChecker.AddCheck("database", db)
	}
	if redisClient != nil {
		healthChecker.AddCheck("redis", &redisHealthChecker{client: redisClient})
	}

	clock := dispatch.NewRealClock()
	engine := dispatch.NewEngine(reg, bookings, catalog, metrics, clock, zapLogger, cfg.Dispatch)

	var timer dispatch.OfferTimer
	var redisScheduler *scheduler.RedisScheduler
	if cfg.Dispatch.Scheduler.Durable && redisClient != nil {
		redisScheduler = scheduler.NewRedisScheduler(
			redisClient,
			cfg.Dispatch.ResponseTimeout,
			cfg.Dispatch.Scheduler.PollInterval,
			zapLogger)
		timer = redisScheduler
		zapLogger.Info("Durable response scheduler enabled",
			zap.Duration("poll_interval", cfg.Dispatch.Scheduler.PollInterval))
	} else {
		timer = dispatch.NewSupervisor(clock, cfg.Dispatch.ResponseTimeout, zapLogger)
	}

	coordinator := dispatch.NewCoordinator(
		engine, timer, bookings, reg, notifier, metrics, clock, zapLogger, cfg.Dispatch)

	if redisScheduler != nil {
		redisScheduler.Start(context.Background())
	}

	handler := api.NewDispatchHandler(coordinator, bookings, catalog, reg, metrics, healthChecker, zapLogger)
	if helperRepo != nil {
		handler.SetHelperPersister(helperRepo)
	}

	router := api.NewSecureRouter(handler, metrics, tracingManager, authMiddleware, rateLimiter, cfg, zapLogger)

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if cfg.Metrics.Enabled {
			if err := metrics.StartServer(cfg.GetMetricsAddr()); err != nil && err != http.ErrServerClosed {
				zapLogger.Error("Metrics server failed", zap.Error(err))
			}
		}
	}()

	go func() {
		zapLogger.Info("Starting dispatch server", zap.String("addr", cfg.GetServerAddr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if redisScheduler != nil {
		redisScheduler.Stop()
	}

	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	if err := metrics.Stop(ctx); err != nil {
		zapLogger.Error("Metrics server shutdown failed", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}
