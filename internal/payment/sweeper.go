package payment

import (
	"context"
	"log/slog"
	"time"

	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	"github.com/gearshare/rental-payments/internal/core/datamodel/payment"
)

// RetrySweeper periodically resolves payments whose scheduled retry has come
// due by re-checking the gateway intent and settling them one way or the
// other.
type RetrySweeper struct {
	payments    PaymentRepository
	service     ServiceAPI
	gateway     GatewayAPI
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
}

func NewRetrySweeper(
	payments PaymentRepository,
	service ServiceAPI,
	gateway GatewayAPI,
	interval time.Duration,
	batchSize int,
	maxAttempts int,
	logger *slog.Logger,
) *RetrySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetrySweeper{
		payments:    payments,
		service:     service,
		gateway:     gateway,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *RetrySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retry sweeper started",
		"interval", s.interval,
		"batch_size", s.batchSize,
		"max_attempts", s.maxAttempts)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of due retries.
func (s *RetrySweeper) Sweep(ctx context.Context) {
	due, err := s.payments.GetDueRetries(time.Now(), s.batchSize)
	if err != nil {
		s.logger.Error("failed to load due retries", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("sweeping due payment retries", "count", len(due))

	for _, p := range due {
		if err := s.resolve(ctx, p); err != nil {
			s.logger.Error("retry resolution failed",
				"intent_id", p.GatewayIntentID,
				"retry_count", p.RetryCount,
				"error", err)
		}
	}
}

func (s *RetrySweeper) resolve(ctx context.Context, p *payment.Payment) error {
	intent, err := s.gateway.RetrieveIntent(ctx, p.GatewayIntentID)
	if err != nil {
		if gatewaytypes.IsTransient(err) && p.RetryCount < s.maxAttempts {
			return s.service.ScheduleRetry(ctx, p.GatewayIntentID)
		}
		return err
	}

	switch intent.Status {
	case gatewaytypes.IntentStatusSucceeded, gatewaytypes.IntentStatusRequiresCapture:
		return s.service.HandlePaymentSuccess(ctx, p.GatewayIntentID)
	case gatewaytypes.IntentStatusCanceled:
		return s.service.HandlePaymentFailure(ctx, p.GatewayIntentID)
	default:
		if p.RetryCount >= s.maxAttempts {
			s.logger.Warn("retry budget exhausted, failing payment",
				"intent_id", p.GatewayIntentID,
				"retry_count", p.RetryCount)
			return s.service.HandlePaymentFailure(ctx, p.GatewayIntentID)
		}
		return s.service.ScheduleRetry(ctx, p.GatewayIntentID)
	}
}
