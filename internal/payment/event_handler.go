package payment

import (
	"context"
	"log/slog"

	"github.com/gearshare/rental-payments/internal/core/events"
)

// EventHandler reacts to payment domain events on the in-process bus.
type EventHandler struct {
	service     ServiceAPI
	maxAttempts int
	logger      *slog.Logger
}

func NewEventHandler(service ServiceAPI, maxAttempts int, logger *slog.Logger) *EventHandler {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &EventHandler{
		service:     service,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (h *EventHandler) RegisterHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentCompleted, h.handlePaymentCompleted)
	bus.Subscribe(events.EventTypePaymentFailed, h.handlePaymentFailed)
}

func (h *EventHandler) handlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		return nil
	}

	h.logger.Info("payment completed",
		"intent_id", completed.IntentID,
		"rental_id", completed.RentalID,
		"amount", completed.Amount,
		"currency", completed.Currency)

	return nil
}

// handlePaymentFailed schedules a durable retry while the budget allows.
func (h *EventHandler) handlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return nil
	}

	if failed.RetryCount >= h.maxAttempts {
		h.logger.Warn("payment failed with retry budget exhausted",
			"intent_id", failed.IntentID,
			"retry_count", failed.RetryCount)
		return nil
	}

	h.logger.Info("scheduling retry for failed payment",
		"intent_id", failed.IntentID,
		"retry_count", failed.RetryCount,
		"reason", failed.FailureReason)

	return h.service.ScheduleRetry(ctx, failed.IntentID)
}
