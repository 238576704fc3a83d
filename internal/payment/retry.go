package payment

import (
	"context"
	"log/slog"
	"time"

	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
)

// RetryCoordinator wraps a single outbound gateway call with bounded
// exponential-backoff retry. It is a request-scoped resilience primitive;
// durable retry lives in ScheduleRetry and the sweep worker.
type RetryCoordinator struct {
	maxRetries   int
	initialDelay time.Duration
	logger       *slog.Logger
}

func NewRetryCoordinator(maxRetries int, initialDelay time.Duration, logger *slog.Logger) *RetryCoordinator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	return &RetryCoordinator{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		logger:       logger,
	}
}

// WithRetry executes op, retrying transient gateway failures with delays of
// initialDelay * 2^attempt. Permanent failures return immediately; exhausting
// retries returns the last error unmodified.
func (rc *RetryCoordinator) WithRetry(ctx context.Context, opName string, op func() error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !gatewaytypes.IsTransient(lastErr) {
			return lastErr
		}

		if attempt >= rc.maxRetries {
			rc.logger.Error("gateway operation failed after retries",
				"operation", opName,
				"attempts", attempt+1,
				"error", lastErr)
			return lastErr
		}

		delay := rc.initialDelay << attempt
		rc.logger.Warn("transient gateway failure, retrying",
			"operation", opName,
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
