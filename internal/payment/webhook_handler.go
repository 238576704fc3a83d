package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	errors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/core/events"
	"github.com/gearshare/rental-payments/internal/transport"
)

const (
	CallbackEventIntentSucceeded = "payment_intent.succeeded"
	CallbackEventIntentFailed    = "payment_intent.payment_failed"
)

// WebhookHandler receives gateway callbacks. It is the public ingress for
// asynchronous payment settlement.
type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	payments       PaymentRepository
	eventBus       *events.EventBus
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, payments PaymentRepository, eventBus *events.EventBus, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		payments:       payments,
		eventBus:       eventBus,
		logger:         logger,
	}
}

type GatewayCallbackRequest struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	IntentID      string `json:"intent_id"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type GatewayCallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req GatewayCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("invalid payment callback request", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("received payment callback",
		"event_id", req.EventID,
		"event_type", req.EventType,
		"intent_id", req.IntentID)

	if req.IntentID == "" {
		h.logger.Error("payment callback missing intent_id", "event_id", req.EventID)
		h.WriteError(w, http.StatusBadRequest, "intent_id is required")
		return
	}

	if req.EventType == "" {
		h.logger.Error("payment callback missing event_type", "intent_id", req.IntentID)
		h.WriteError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	if err := h.processCallback(r, &req); err != nil {
		if errors.IsErrorCode(err, errors.ErrCodePaymentNotFound) {
			h.WriteError(w, http.StatusNotFound, "payment not found")
			return
		}
		// Out-of-order redeliveries must be acknowledged or the gateway
		// retries them forever.
		if errors.IsErrorCode(err, errors.ErrCodeInvalidTransition) {
			h.logger.Info("acknowledged stale payment callback",
				"intent_id", req.IntentID,
				"event_type", req.EventType)
			h.WriteJSON(w, http.StatusOK, GatewayCallbackResponse{
				Status:  "ignored",
				Message: "event does not apply to the current payment state",
			})
			return
		}
		h.logger.Error("failed to process payment callback",
			"error", err,
			"intent_id", req.IntentID,
			"event_type", req.EventType)
		h.WriteError(w, http.StatusInternalServerError, "failed to process payment callback")
		return
	}

	h.logger.Info("payment callback processed",
		"event_id", req.EventID,
		"event_type", req.EventType,
		"intent_id", req.IntentID)

	h.WriteJSON(w, http.StatusOK, GatewayCallbackResponse{
		Status:  "success",
		Message: "callback processed successfully",
	})
}

func (h *WebhookHandler) processCallback(r *http.Request, req *GatewayCallbackRequest) error {
	ctx := r.Context()

	switch req.EventType {
	case CallbackEventIntentSucceeded:
		if err := h.paymentService.HandlePaymentSuccess(ctx, req.IntentID); err != nil {
			return err
		}

		if p, err := h.payments.GetByIntentID(req.IntentID); err == nil {
			event := events.NewPaymentCompletedEvent(p.GatewayIntentID, p.RentalID, p.UserID, p.Amount, p.Currency)
			h.eventBus.Publish(ctx, event)
			h.logger.Info("published payment completed event", "event_id", event.EventID())
		}
		return nil

	case CallbackEventIntentFailed:
		if err := h.paymentService.HandlePaymentFailure(ctx, req.IntentID); err != nil {
			return err
		}

		if p, err := h.payments.GetByIntentID(req.IntentID); err == nil {
			event := events.NewPaymentFailedEvent(p.GatewayIntentID, p.UserID, req.FailureReason, p.RetryCount)
			h.eventBus.Publish(ctx, event)
			h.logger.Info("published payment failed event", "event_id", event.EventID())
		}
		return nil

	default:
		h.logger.Info("ignoring unhandled callback event type",
			"event_type", req.EventType,
			"intent_id", req.IntentID)
		return nil
	}
}
