// Package main provides the main entry point for the deposit top-up engine
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valzstore/topup-engine/app/handlers"
	"github.com/valzstore/topup-engine/app/middleware"
	"github.com/valzstore/topup-engine/app/router"
	"github.com/valzstore/topup-engine/app/scheduler"
	"github.com/valzstore/topup-engine/app/services"
	businessflow "github.com/valzstore/topup-engine/business_flow"
	"github.com/valzstore/topup-engine/config"
	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/repository"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting topup engine...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Operator utility: mint an admin bearer token and exit
	if len(os.Args) > 1 && os.Args[1] == "admin-token" {
		tokenService := services.NewJWTTokenService(cfg.JWT.SecretKey, cfg.JWT.Issuer)
		token, err := tokenService.GenerateAdminToken(cfg.Admin.Subject, cfg.Admin.TokenTTL)
		if err != nil {
			log.Fatalf("Failed to generate admin token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// startMetricsServer exposes the Prometheus scrape endpoint on its own
// listener, separate from the API port.
func startMetricsServer(cfg config.MetricsConfig) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	go func() {
		log.Printf("Metrics server starting on :%d%s", cfg.Port, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.DepositRequest{}, &models.Transaction{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))

	// Initialize repositories
	depositRepo := repository.NewDepositRequestRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	otpRepo := repository.NewRedisOTPCodeRepository(rc)

	// Initialize services
	gateway := services.NewOrkutClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.APIKey,
		cfg.Gateway.MerchantID,
		cfg.Gateway.MerchantKey,
		cfg.Gateway.StaticQRIS,
		cfg.Gateway.Timeout,
	)
	ledger := services.NewDashLedgerClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey, cfg.Ledger.Timeout)
	notifier := services.NewDiscordWebhookNotifier(
		cfg.Notification.WebhookURL,
		cfg.Notification.MaxAttempts,
		cfg.Notification.Timeout,
		log.Default(),
	)
	tokenService := services.NewJWTTokenService(cfg.JWT.SecretKey, cfg.JWT.Issuer)

	log.Printf("Token service initialized with issuer: %s", cfg.JWT.Issuer)

	// Initialize flows
	depositFlow := businessflow.NewDepositFlow(depositRepo, gateway, db, cfg.Deposit)
	creditFlow := businessflow.NewCreditFlow(depositRepo, transactionRepo, ledger, notifier, log.Default())
	reconciliationFlow := businessflow.NewReconciliationFlow(depositRepo, gateway, creditFlow, cfg.Deposit.PollWindow, log.Default())
	otpFlow := businessflow.NewOTPFlow(otpRepo, cfg.OTP, log.Default())

	// Start the reconciliation scheduler
	recScheduler := scheduler.NewReconciliationScheduler(reconciliationFlow, cfg.Deposit, cfg.Logging)
	stopFuncs = append(stopFuncs, recScheduler.Start(context.Background()))

	// Metrics endpoint on its own port
	if cfg.Metrics.Enabled {
		stopFuncs = append(stopFuncs, startMetricsServer(cfg.Metrics))
	}

	// Initialize handlers
	depositHandler := handlers.NewDepositHandler(depositFlow)
	otpHandler := handlers.NewOTPHandler(otpFlow)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(cfg, depositHandler, otpHandler, authMiddleware)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
