package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/core/events"
	"github.com/gearshare/rental-payments/internal/gateway"
	"github.com/gearshare/rental-payments/internal/payment"
	paymentpg "github.com/gearshare/rental-payments/internal/payment/postgres"
	"github.com/gearshare/rental-payments/internal/ratelimit"
	"github.com/gearshare/rental-payments/internal/transport"
	"github.com/gearshare/rental-payments/internal/transport/rest"
	"github.com/gearshare/rental-payments/internal/transport/swagger"
	"github.com/gearshare/rental-payments/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
		if err := deps.Redis.Close(); err != nil {
			slog.Error("Redis close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	if _, err := swagger.LoadSpec(context.Background(), "./api/openapi.yml"); err != nil {
		lg.Warn("openapi spec not loaded", "error", err)
	}

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:     config.Gateway.BaseURL,
		APIKey:      config.Gateway.APIKey,
		CallTimeout: config.Gateway.CallTimeoutOrDefault(),
	}, lg)

	paymentRepo := paymentpg.NewPaymentRepository(gormDB)
	rentalRepo := paymentpg.NewRentalRepository(gormDB)
	userRepo := paymentpg.NewUserRepository(gormDB)
	notificationRepo := paymentpg.NewNotificationRepository(gormDB)

	limiter := ratelimit.NewRedisLimiter(
		redisClient,
		config.RateLimit.LimitOrDefault(),
		config.RateLimit.WindowOrDefault(),
		lg,
	)

	transitions := payment.NewStateTransitionEngine(paymentRepo, rentalRepo, lg)
	retryCoordinator := payment.NewRetryCoordinator(config.RetrySweep.MaxAttemptsOrDefault(), time.Second, lg)
	notifier := payment.NewNotificationEmitter(notificationRepo, lg)

	paymentService := payment.NewService(gatewayClient, paymentRepo, rentalRepo, transitions, retryCoordinator, notifier, limiter, lg)
	refundEngine := payment.NewRefundEngine(gatewayClient, paymentRepo, transitions, retryCoordinator, notifier, lg)
	payoutEngine := payment.NewPayoutEngine(
		gatewayClient, paymentRepo, rentalRepo, userRepo, retryCoordinator, notifier,
		config.Payout.FeeRateOrDefault(), config.Payout.CurrencyOrDefault(), lg,
	)

	eventBus := events.NewEventBus(lg)
	eventHandler := payment.NewEventHandler(paymentService, config.RetrySweep.MaxAttemptsOrDefault(), lg)
	eventHandler.RegisterHandlers(eventBus)

	baseHandler := transport.NewBaseHandler(lg)
	paymentHandler := payment.NewHandler(paymentService, refundEngine, payoutEngine)
	webhookHandler := payment.NewWebhookHandler(baseHandler, paymentService, paymentRepo, eventBus, lg)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, redisClient, config.Security.JWTSecret, paymentHandler, webhookHandler, lg)

	return &Dependencies{
		Config: config,
		Logger: lg,
		DB:     db,
		Redis:  redisClient,
		Router: router,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
