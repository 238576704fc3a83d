package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gearshare/rental-payments/internal/gateway"
	"github.com/gearshare/rental-payments/internal/payment"
	paymentpg "github.com/gearshare/rental-payments/internal/payment/postgres"
	"github.com/gearshare/rental-payments/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers for payment processing.`,
}

var retrySweepCmd = &cobra.Command{
	Use:   "retry-sweep",
	Short: "Start the payment retry sweep worker",
	Long:  `Start the worker that resolves payments whose scheduled retry has come due`,
	Run: func(cmd *cobra.Command, args []string) {
		startRetrySweeper()
	},
}

var (
	sweepInterval  time.Duration
	sweepBatchSize int
)

func startRetrySweeper() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := sqlx.Connect("pgx", config.Database.Source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize gorm: %v\n", err)
		os.Exit(1)
	}

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:     config.Gateway.BaseURL,
		APIKey:      config.Gateway.APIKey,
		CallTimeout: config.Gateway.CallTimeoutOrDefault(),
	}, lg)

	paymentRepo := paymentpg.NewPaymentRepository(gormDB)
	rentalRepo := paymentpg.NewRentalRepository(gormDB)
	notificationRepo := paymentpg.NewNotificationRepository(gormDB)

	transitions := payment.NewStateTransitionEngine(paymentRepo, rentalRepo, lg)
	retryCoordinator := payment.NewRetryCoordinator(config.RetrySweep.MaxAttemptsOrDefault(), time.Second, lg)
	notifier := payment.NewNotificationEmitter(notificationRepo, lg)

	// The sweeper runs without a rate limiter: it replays existing intents.
	paymentService := payment.NewService(gatewayClient, paymentRepo, rentalRepo, transitions, retryCoordinator, notifier, nil, lg)

	interval := config.RetrySweep.IntervalOrDefault()
	if sweepInterval > 0 {
		interval = sweepInterval
	}
	batchSize := config.RetrySweep.BatchSizeOrDefault()
	if sweepBatchSize > 0 {
		batchSize = sweepBatchSize
	}

	sweeper := payment.NewRetrySweeper(
		paymentRepo,
		paymentService,
		gatewayClient,
		interval,
		batchSize,
		config.RetrySweep.MaxAttemptsOrDefault(),
		lg,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Start(ctx)

	lg.Info("retry sweep worker is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	lg.Info("received signal, shutting down retry sweep worker", "signal", sig)
	cancel()

	lg.Info("retry sweep worker shutdown complete")
}

func init() {
	retrySweepCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Sweep interval (overrides config)")
	retrySweepCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 0, "Sweep batch size (overrides config)")

	workerCmd.AddCommand(retrySweepCmd)
}
