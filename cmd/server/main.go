package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/adapter/bus"
	"github.com/evpower/evpower-backend/internal/adapter/cache"
	"github.com/evpower/evpower-backend/internal/adapter/external/notification"
	"github.com/evpower/evpower-backend/internal/adapter/http/fiber/handlers"
	"github.com/evpower/evpower-backend/internal/adapter/http/fiber/middleware"
	v16 "github.com/evpower/evpower-backend/internal/adapter/ocpp/v16"
	"github.com/evpower/evpower-backend/internal/adapter/queue"
	"github.com/evpower/evpower-backend/internal/adapter/storage/postgres"
	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
	"github.com/evpower/evpower-backend/internal/service/auth"
	"github.com/evpower/evpower-backend/internal/service/availability"
	"github.com/evpower/evpower-backend/internal/service/charging"
	"github.com/evpower/evpower-backend/internal/service/health"
	"github.com/evpower/evpower-backend/internal/service/pricing"
	"github.com/evpower/evpower-backend/internal/service/stationauth"
	"github.com/evpower/evpower-backend/pkg/config"
)

const (
	serviceName    = "evpower-backend"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting EvPower Backend",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Initialize PostgreSQL Connection Pool
	db, err := postgres.NewConnection(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to get underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 4. Initialize Redis Cache and Bus
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	redisBus, err := bus.NewRedisBus(cfg.Redis.URL, cfg.Redis.Password, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis bus", zap.Error(err))
	}
	defer redisBus.Close()

	// 5. Initialize Message Queue
	messageQueue, err := queue.New(cfg.Queue.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err))
	}
	defer messageQueue.Close()

	// 6. Initialize Repositories
	clientRepo := postgres.NewClientRepository(db, logger)
	stationRepo := postgres.NewStationRepository(db, logger)
	connectorRepo := postgres.NewConnectorRepository(db, logger)
	tariffRepo := postgres.NewTariffRepository(db, logger)
	sessionRepo := postgres.NewSessionRepository(db, logger)
	ocppRepo := postgres.NewOcppRepository(db, logger)
	walletRepo := postgres.NewWalletRepository(db, logger)
	idempotencyRepo := postgres.NewIdempotencyRepository(db, logger)

	// 7. Initialize Services (Business Logic Layer)
	pricingService := pricing.NewService(stationRepo, tariffRepo, redisCache, logger)
	chargingService := charging.NewService(
		clientRepo, stationRepo, connectorRepo, sessionRepo, ocppRepo,
		walletRepo, tariffRepo, pricingService, redisBus, messageQueue, logger)
	availabilityService := availability.NewService(
		stationRepo, connectorRepo, ocppRepo, sessionRepo, redisBus, redisCache, messageQueue, logger)
	stationAuthService := stationauth.NewService(
		stationRepo, cfg.Auth.SecretKey, cfg.OCPP.MasterKey, cfg.OCPP.VerifyStationKeys, logger)
	smsSender := notification.NewSMSAdapter(
		cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber, logger)
	authService := auth.NewService(clientRepo, redisCache, smsSender, cfg.Auth.SecretKey, logger)
	healthService := health.NewService(&health.Config{
		Version:       serviceVersion,
		DB:            sqlDB,
		Redis:         redisCache.Client(),
		NatsConnected: messageQueue.Connected,
	}, logger)

	// 8. Initialize OCPP 1.6 Server
	ocppServer := v16.NewServer(
		chargingService, availabilityService, stationAuthService,
		ocppRepo, clientRepo, redisBus, cfg.OCPP.LogMessages, logger)
	go func() {
		if err := ocppServer.Start(cfg.OCPP.Port); err != nil {
			logger.Fatal("OCPP server failed", zap.Error(err))
		}
	}()

	// 9. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	if cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cfg.CORS))
	} else {
		app.Use(middleware.DefaultCORS())
	}
	if cfg.RateLimit.Enabled {
		app.Use(middleware.RateLimit(cfg.RateLimit.PerMinute))
	}
	app.Use(middleware.CircuitBreaker(logger))
	app.Use(middleware.Idempotency(idempotencyRepo, logger))

	// Health Check Endpoints
	health.NewFiberHandler(healthService).RegisterRoutes(app)

	// Metrics endpoint for Prometheus
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// API v1 Routes
	v1 := app.Group("/api/v1")

	// Auth routes (public)
	authHandler := handlers.NewAuthHandler(authService, logger)
	v1.Post("/auth/otp/request", authHandler.RequestOTP)
	v1.Post("/auth/otp/verify", authHandler.VerifyOTP)
	v1.Post("/auth/logout", authHandler.Logout)

	// Protected routes
	protected := v1.Group("", middleware.AuthRequired(authService))

	// Charging routes
	chargingHandler := handlers.NewChargingHandler(chargingService, logger)
	critical := protected.Group("", middleware.RateLimit(cfg.RateLimit.CriticalPerMinute))
	critical.Post("/charging/start", chargingHandler.Start)
	critical.Post("/charging/stop", chargingHandler.Stop)
	protected.Get("/charging/status/:id", chargingHandler.Status)

	// Wallet routes
	walletHandler := handlers.NewWalletHandler(walletRepo, clientRepo, logger)
	protected.Get("/balance", walletHandler.Balance)
	critical.Post("/balance/topup", walletHandler.Topup)
	protected.Get("/balance/ledger", walletHandler.Ledger)

	// Station routes
	stationHandler := handlers.NewStationHandler(
		stationRepo, availabilityService, stationAuthService, redisBus, logger)
	protected.Get("/stations", stationHandler.List)
	protected.Get("/stations/:id", stationHandler.Get)
	protected.Get("/stations/:id/health", stationHandler.Health)
	protected.Get("/locations/:id/status", stationHandler.LocationStatus)
	protected.Post("/stations/:id/commands", stationHandler.Command)
	protected.Post("/stations/:id/api-key", stationHandler.IssueAPIKey)

	// 10. Start Background Workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go runBackgroundWorkers(workerCtx, cfg.Workers, chargingService, availabilityService, idempotencyRepo, logger)

	// 11. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 12. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	ocppServer.Stop()

	logger.Info("Server exited gracefully")
}

// runBackgroundWorkers drives the periodic sweeps: station liveness,
// hanging session settlement and idempotency record cleanup.
func runBackgroundWorkers(
	ctx context.Context,
	cfg config.WorkersConfig,
	chargingService *charging.Service,
	availabilityService *availability.Service,
	idempotencyRepo ports.IdempotencyRepository,
	logger *zap.Logger,
) {
	logger.Info("Starting background workers")

	statusTicker := time.NewTicker(cfg.StatusCheckInterval())
	defer statusTicker.Stop()
	sweepTicker := time.NewTicker(cfg.HangingSessionSweep())
	defer sweepTicker.Stop()
	cleanupTicker := time.NewTicker(cfg.CleanupInterval())
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Background workers stopped")
			return
		case <-statusTicker.C:
			if err := availabilityService.SweepStatuses(ctx); err != nil {
				logger.Error("Status sweep failed", zap.Error(err))
			}
		case <-sweepTicker.C:
			if err := chargingService.SweepHangingSessions(ctx); err != nil {
				logger.Error("Hanging session sweep failed", zap.Error(err))
			}
		case <-cleanupTicker.C:
			deleted, err := idempotencyRepo.DeleteOlderThan(ctx, domain.IdempotencyRetention)
			if err != nil {
				logger.Error("Idempotency cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Info("Purged idempotency records", zap.Int64("deleted", deleted))
			}
		}
	}
}
