package payment

import (
	"context"
	"log/slog"
	"math"
	"time"

	errors "github.com/gearshare/rental-payments/internal"
	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	"github.com/gearshare/rental-payments/internal/core/datamodel/payment"
)

// RefundEngine handles renter refunds and security deposit releases.
type RefundEngine struct {
	gateway     GatewayAPI
	payments    PaymentRepository
	transitions *StateTransitionEngine
	retry       *RetryCoordinator
	notifier    *NotificationEmitter
	logger      *slog.Logger
}

func NewRefundEngine(
	gateway GatewayAPI,
	payments PaymentRepository,
	transitions *StateTransitionEngine,
	retry *RetryCoordinator,
	notifier *NotificationEmitter,
	logger *slog.Logger,
) *RefundEngine {
	return &RefundEngine{
		gateway:     gateway,
		payments:    payments,
		transitions: transitions,
		retry:       retry,
		notifier:    notifier,
		logger:      logger,
	}
}

// RefundPayment refunds a completed payment, fully when amount is nil or
// partially otherwise. The refund may not exceed what the gateway actually
// captured. Local state is checked first so a replayed request cannot move
// money at the gateway a second time.
func (e *RefundEngine) RefundPayment(ctx context.Context, intentID string, amount *float64) error {
	p, err := e.payments.GetByIntentID(intentID)
	if err != nil {
		return errors.ErrPaymentNotFound
	}

	if !CanTransition(p.Status, payment.StatusRefunded) {
		e.logger.Warn("refund rejected by current payment status",
			"intent_id", intentID,
			"status", p.Status)
		return errors.NewInvalidTransitionError(p.Status, payment.StatusRefunded)
	}

	intent, err := e.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		e.logger.Error("failed to retrieve intent for refund", "intent_id", intentID, "error", err)
		return err
	}

	refundMinor := intent.AmountReceived
	if amount != nil {
		refundMinor = int64(math.Round(*amount * 100))
	}

	if refundMinor > intent.AmountReceived {
		e.logger.Warn("refund rejected, exceeds captured amount",
			"intent_id", intentID,
			"requested", refundMinor,
			"captured", intent.AmountReceived)
		return errors.NewValidationError("refund amount exceeds captured amount", errors.ErrCodeRefundExceedsCaptured)
	}

	req := &gatewaytypes.RefundRequest{IntentID: intentID}
	if amount != nil {
		minor := refundMinor
		req.Amount = &minor
	}

	err = e.retry.WithRetry(ctx, "create_refund", func() error {
		_, refundErr := e.gateway.CreateRefund(ctx, req)
		return refundErr
	})
	if err != nil {
		e.logger.Error("gateway refund failed", "intent_id", intentID, "error", err)
		return err
	}

	now := time.Now()
	_, updated, err := e.transitions.UpdatePaymentAndRental(intentID, payment.StatusRefunded, map[string]interface{}{
		"refunded_at": &now,
	})
	if err != nil {
		return err
	}

	e.logger.Info("payment refunded",
		"intent_id", intentID,
		"refund_amount_minor", refundMinor,
		"rental_id", updated.RentalID)

	e.notifier.Emit(updated.UserID, "Payment Refunded",
		"Your rental payment has been refunded.", NotificationTypeRefund)

	return nil
}

// RefundSecurityDeposit releases the held deposit back to the renter after
// equipment return, fully when amount is nil or partially otherwise (for
// deductions like damage fees). Payments recorded without a deposit are
// rejected before any gateway call.
func (e *RefundEngine) RefundSecurityDeposit(ctx context.Context, intentID string, amount *float64) error {
	p, err := e.payments.GetByIntentID(intentID)
	if err != nil {
		return errors.ErrPaymentNotFound
	}

	if p.SecurityDepositAmount == nil || *p.SecurityDepositAmount <= 0 {
		return errors.ErrNoSecurityDeposit
	}

	if p.SecurityDepositReturned || !CanTransition(p.Status, payment.StatusRefunded) {
		e.logger.Warn("deposit refund rejected by current payment status",
			"intent_id", intentID,
			"status", p.Status,
			"deposit_returned", p.SecurityDepositReturned)
		return errors.NewInvalidTransitionError(p.Status, payment.StatusRefunded)
	}

	depositMinor := int64(math.Round(*p.SecurityDepositAmount * 100))
	if amount != nil {
		requestedMinor := int64(math.Round(*amount * 100))
		if requestedMinor > depositMinor {
			return errors.NewValidationError("refund amount exceeds held deposit", errors.ErrCodeRefundExceedsCaptured)
		}
		depositMinor = requestedMinor
	}

	err = e.retry.WithRetry(ctx, "refund_security_deposit", func() error {
		_, refundErr := e.gateway.CreateRefund(ctx, &gatewaytypes.RefundRequest{
			IntentID: intentID,
			Amount:   &depositMinor,
		})
		return refundErr
	})
	if err != nil {
		e.logger.Error("security deposit refund failed",
			"intent_id", intentID,
			"deposit_minor", depositMinor,
			"error", err)
		return err
	}

	now := time.Now()
	_, _, err = e.transitions.UpdatePaymentAndRental(intentID, payment.StatusRefunded, map[string]interface{}{
		"refunded_at":               &now,
		"security_deposit_returned": true,
	})
	if err != nil {
		return err
	}

	e.logger.Info("security deposit refunded",
		"intent_id", intentID,
		"deposit_minor", depositMinor)

	e.notifier.Emit(p.UserID, "Security Deposit Refunded",
		"Your security deposit has been released.", NotificationTypeRefund)

	return nil
}
