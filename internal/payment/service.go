package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	errors "github.com/gearshare/rental-payments/internal"
	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	"github.com/gearshare/rental-payments/internal/core/datamodel/payment"
)

// Service orchestrates the payment lifecycle: intent creation, success and
// failure callbacks, fraud blocks, durable retry scheduling and late rental
// attachment.
type Service struct {
	gateway     GatewayAPI
	payments    PaymentRepository
	rentals     RentalRepository
	transitions *StateTransitionEngine
	retry       *RetryCoordinator
	notifier    *NotificationEmitter
	limiter     RateLimiter
	logger      *slog.Logger
}

func NewService(
	gateway GatewayAPI,
	payments PaymentRepository,
	rentals RentalRepository,
	transitions *StateTransitionEngine,
	retry *RetryCoordinator,
	notifier *NotificationEmitter,
	limiter RateLimiter,
	logger *slog.Logger,
) *Service {
	return &Service{
		gateway:     gateway,
		payments:    payments,
		rentals:     rentals,
		transitions: transitions,
		retry:       retry,
		notifier:    notifier,
		limiter:     limiter,
		logger:      logger,
	}
}

// CreatePaymentIntent authorizes a new payment on the gateway and persists the
// local Payment record. Amounts arrive in minor units and are stored in major
// units. Payments with a security deposit use manual capture so the deposit
// portion stays authorized but uncaptured.
func (s *Service) CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*gatewaytypes.Intent, *payment.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	userID := req.Metadata.UserID()

	if s.limiter != nil {
		exceeded, err := s.limiter.CheckAndConsume(ctx, userID)
		if err != nil {
			// limiter infrastructure failure must not take payments down
			s.logger.Warn("rate limiter unavailable, allowing request",
				"user_id", userID,
				"error", err)
		} else if exceeded {
			s.logger.Warn("payment intent rate limit exceeded", "user_id", userID)
			return nil, nil, errors.ErrRateLimitExceeded
		}
	}

	captureMethod := gatewaytypes.CaptureMethodAutomatic
	securityDeposit := req.Metadata.SecurityDeposit()
	if securityDeposit > 0 {
		captureMethod = gatewaytypes.CaptureMethodManual
	}

	intent, err := s.gateway.CreateIntent(ctx, &gatewaytypes.CreateIntentRequest{
		Amount:        req.Amount,
		Currency:      req.Currency,
		CaptureMethod: captureMethod,
		Metadata:      req.Metadata,
	})
	if err != nil {
		s.logger.Error("gateway intent creation failed",
			"user_id", userID,
			"amount", req.Amount,
			"error", err)
		return nil, nil, err
	}

	rentalID := req.Metadata.RentalID()
	if rentalID == "" {
		rentalID = NewPlaceholderRentalID()
	}

	p := &payment.Payment{
		GatewayIntentID: intent.ID,
		UserID:          userID,
		RentalID:        rentalID,
		Amount:          float64(req.Amount) / 100,
		Currency:        strings.ToUpper(req.Currency),
		Status:          payment.StatusPending,
	}

	if securityDeposit > 0 {
		deposit := securityDeposit
		p.SecurityDepositAmount = &deposit
	}
	if rentalAmount := req.Metadata.RentalAmount(); rentalAmount > 0 {
		amount := rentalAmount
		p.RentalAmount = &amount
	}

	if snapshot, err := json.Marshal(req.Metadata); err == nil {
		p.Metadata = snapshot
	}

	if err := s.payments.Create(p); err != nil {
		s.logger.Error("failed to persist payment record",
			"intent_id", intent.ID,
			"user_id", userID,
			"error", err)
		return nil, nil, errors.NewInternalError("failed to create payment record", err)
	}

	s.logger.Info("payment intent created",
		"intent_id", intent.ID,
		"user_id", userID,
		"rental_id", rentalID,
		"amount", p.Amount,
		"currency", p.Currency,
		"capture_method", captureMethod)

	return intent, p, nil
}

// HandlePaymentSuccess completes a payment after the gateway confirms the
// charge. For manual-capture payments it captures the rental portion only,
// leaving the security deposit authorized. Duplicate callbacks are ignored.
func (s *Service) HandlePaymentSuccess(ctx context.Context, intentID string) error {
	p, err := s.payments.GetByIntentID(intentID)
	if err != nil {
		s.logger.Error("success callback for unknown payment", "intent_id", intentID, "error", err)
		return errors.ErrPaymentNotFound
	}

	if p.Status == payment.StatusCompleted {
		s.logger.Info("duplicate success callback ignored", "intent_id", intentID)
		return nil
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		s.logger.Error("failed to retrieve intent on success callback",
			"intent_id", intentID,
			"error", err)
		return err
	}

	if p.SecurityDepositAmount != nil && *p.SecurityDepositAmount > 0 &&
		intent.Status == gatewaytypes.IntentStatusRequiresCapture {
		rentalAmount := p.Amount
		if p.RentalAmount != nil && *p.RentalAmount > 0 {
			rentalAmount = *p.RentalAmount
		}
		captureMinor := int64(math.Round(rentalAmount * 100))

		err := s.retry.WithRetry(ctx, "capture_intent", func() error {
			_, captureErr := s.gateway.CaptureIntent(ctx, intentID, captureMinor)
			return captureErr
		})
		if err != nil {
			s.logger.Error("partial capture failed",
				"intent_id", intentID,
				"capture_amount", captureMinor,
				"error", err)
			return err
		}

		s.logger.Info("captured rental amount, deposit held",
			"intent_id", intentID,
			"capture_amount", captureMinor)
	}

	now := time.Now()
	_, updated, err := s.transitions.UpdatePaymentAndRental(intentID, payment.StatusCompleted, map[string]interface{}{
		"paid_at": &now,
	})
	if err != nil {
		return err
	}

	meta := s.metadataOf(updated)
	s.notifier.Emit(updated.UserID, "Payment Successful",
		"Your rental payment was processed successfully.", NotificationTypePayment)
	if ownerID := meta.OwnerID(); ownerID != "" {
		s.notifier.Emit(ownerID, "New Rental Booking",
			"Your equipment has been booked and paid for.", NotificationTypeBooking)
	}

	return nil
}

// HandlePaymentFailure records a failed charge. An invalid transition here
// means the payment already settled; it is logged and swallowed so replayed
// failure callbacks stay harmless.
func (s *Service) HandlePaymentFailure(ctx context.Context, intentID string) error {
	now := time.Now()
	_, updated, err := s.transitions.UpdatePaymentAndRental(intentID, payment.StatusFailed, map[string]interface{}{
		"failed_at": &now,
	})
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrCodeInvalidTransition) {
			s.logger.Info("stale failure callback ignored", "intent_id", intentID)
			return nil
		}
		return err
	}

	s.notifier.Emit(updated.UserID, "Payment Failed",
		"Your rental payment could not be processed. Please check your payment method.", NotificationTypePayment)

	return nil
}

// BlockPayment marks a payment as blocked for fraud or policy review.
func (s *Service) BlockPayment(ctx context.Context, intentID, reason string) error {
	_, updated, err := s.transitions.UpdatePaymentAndRental(intentID, payment.StatusBlocked, map[string]interface{}{
		"is_blocked":   true,
		"block_reason": reason,
	})
	if err != nil {
		return err
	}

	s.logger.Warn("payment blocked",
		"intent_id", intentID,
		"user_id", updated.UserID,
		"reason", reason)

	s.notifier.Emit(updated.UserID, "Payment Blocked",
		"Your payment was blocked and is under review. Please contact support.", NotificationTypePayment)

	return nil
}

// ScheduleRetry books a durable retry for a failed payment with exponential
// backoff: attempt n waits 2^n minutes.
func (s *Service) ScheduleRetry(ctx context.Context, intentID string) error {
	p, err := s.payments.GetByIntentID(intentID)
	if err != nil {
		return errors.ErrPaymentNotFound
	}

	newCount := p.RetryCount + 1
	now := time.Now()
	nextRetryAt := now.Add(time.Duration(1<<newCount) * time.Minute)

	_, _, err = s.transitions.UpdatePaymentAndRental(intentID, payment.StatusRetryScheduled, map[string]interface{}{
		"retry_count":   newCount,
		"last_retry_at": &now,
		"next_retry_at": &nextRetryAt,
	})
	if err != nil {
		return err
	}

	s.logger.Info("payment retry scheduled",
		"intent_id", intentID,
		"retry_count", newCount,
		"next_retry_at", nextRetryAt)

	return nil
}

// AttachRental binds a placeholder payment to its real rental record once the
// rental exists, updating gateway metadata and projecting the current payment
// status onto the rental.
func (s *Service) AttachRental(ctx context.Context, intentID, rentalID string) error {
	p, err := s.payments.GetByIntentID(intentID)
	if err != nil {
		return errors.ErrPaymentNotFound
	}

	if p.RentalID != "" && !IsPlaceholderRentalID(p.RentalID) {
		return errors.NewConflictError("payment is already attached to a rental", errors.ErrCodeRentalAlreadyAttached)
	}

	if _, err := s.rentals.GetByID(rentalID); err != nil {
		return errors.ErrRentalNotFound
	}

	err = s.retry.WithRetry(ctx, "update_intent_metadata", func() error {
		_, updateErr := s.gateway.UpdateIntent(ctx, intentID, map[string]string{MetaRentalID: rentalID})
		return updateErr
	})
	if err != nil {
		s.logger.Error("failed to update gateway intent metadata",
			"intent_id", intentID,
			"rental_id", rentalID,
			"error", err)
		return err
	}

	if err := s.payments.UpdateFields(p.ID, map[string]interface{}{"rental_id": rentalID}); err != nil {
		return errors.NewInternalError("failed to attach rental to payment", err)
	}

	if rentalStatus, ok := RentalStatusFor(p.Status); ok {
		if err := s.rentals.UpdateStatus(rentalID, rentalStatus); err != nil {
			return errors.NewInternalError("failed to sync rental status", err)
		}
	}

	s.logger.Info("rental attached to payment",
		"intent_id", intentID,
		"rental_id", rentalID,
		"previous_rental_id", p.RentalID)

	return nil
}

func (s *Service) metadataOf(p *payment.Payment) IntentMetadata {
	meta := IntentMetadata{}
	if len(p.Metadata) > 0 {
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			s.logger.Warn("unreadable payment metadata snapshot", "intent_id", p.GatewayIntentID, "error", err)
		}
	}
	return meta
}
