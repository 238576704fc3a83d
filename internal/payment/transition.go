package payment

import (
	"log/slog"

	errors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/core/datamodel/payment"
	"github.com/gearshare/rental-payments/internal/core/datamodel/rental"
)

// rentalStatusByPayment is the authoritative Payment -> Rental projection.
// It is the single source of truth for cross-aggregate consistency; no other
// component writes rental status directly.
var rentalStatusByPayment = map[string]string{
	payment.StatusCompleted:      rental.StatusPaid,
	payment.StatusFailed:         rental.StatusPaymentFailed,
	payment.StatusBlocked:        rental.StatusPaymentFailed,
	payment.StatusRefunded:       rental.StatusRefunded,
	payment.StatusPending:        rental.StatusPending,
	payment.StatusRetryScheduled: rental.StatusPending,
}

// RentalStatusFor returns the rental status projected from a payment status.
func RentalStatusFor(paymentStatus string) (string, bool) {
	rentalStatus, ok := rentalStatusByPayment[paymentStatus]
	return rentalStatus, ok
}

// allowedPredecessors guards every transition against duplicate and
// out-of-order gateway callbacks: a transition is applied only when the
// current persisted status is an expected predecessor of the new one.
var allowedPredecessors = map[string][]string{
	payment.StatusCompleted:      {payment.StatusPending, payment.StatusRetryScheduled},
	payment.StatusFailed:         {payment.StatusPending, payment.StatusRetryScheduled},
	payment.StatusBlocked:        {payment.StatusPending, payment.StatusRetryScheduled, payment.StatusFailed},
	payment.StatusRefunded:       {payment.StatusCompleted},
	payment.StatusRetryScheduled: {payment.StatusPending, payment.StatusFailed, payment.StatusRetryScheduled},
	payment.StatusPending:        {payment.StatusFailed, payment.StatusRetryScheduled},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range allowedPredecessors[to] {
		if from == allowed {
			return true
		}
	}
	return false
}

// StateTransitionEngine owns the paired Payment/Rental update. All status
// changes in the orchestrator are funneled through it.
type StateTransitionEngine struct {
	payments PaymentRepository
	rentals  RentalRepository
	logger   *slog.Logger
}

func NewStateTransitionEngine(payments PaymentRepository, rentals RentalRepository, logger *slog.Logger) *StateTransitionEngine {
	return &StateTransitionEngine{
		payments: payments,
		rentals:  rentals,
		logger:   logger,
	}
}

// UpdatePaymentAndRental persists newStatus plus extra fields on the payment
// identified by intentID and projects the mapped status onto the paired
// rental. It returns the pre-update snapshot and the updated payment so
// callers can read prior-state context.
func (e *StateTransitionEngine) UpdatePaymentAndRental(intentID, newStatus string, extraFields map[string]interface{}) (*payment.Payment, *payment.Payment, error) {
	prior, err := e.payments.GetByIntentID(intentID)
	if err != nil {
		e.logger.Error("payment not found for transition",
			"intent_id", intentID,
			"new_status", newStatus,
			"error", err)
		return nil, nil, errors.ErrPaymentNotFound
	}

	if !CanTransition(prior.Status, newStatus) {
		e.logger.Warn("rejected payment status transition",
			"intent_id", intentID,
			"current_status", prior.Status,
			"new_status", newStatus)
		return nil, nil, errors.NewInvalidTransitionError(prior.Status, newStatus)
	}

	fields := map[string]interface{}{"status": newStatus}
	for k, v := range extraFields {
		fields[k] = v
	}

	if err := e.payments.UpdateFields(prior.ID, fields); err != nil {
		return nil, nil, errors.NewInternalError("failed to update payment status", err)
	}

	if rentalStatus, ok := RentalStatusFor(newStatus); ok && prior.RentalID != "" && !IsPlaceholderRentalID(prior.RentalID) {
		if err := e.rentals.UpdateStatus(prior.RentalID, rentalStatus); err != nil {
			e.logger.Error("failed to update paired rental status",
				"intent_id", intentID,
				"rental_id", prior.RentalID,
				"rental_status", rentalStatus,
				"error", err)
			return nil, nil, errors.NewInternalError("failed to update rental status", err)
		}
	}

	updated, err := e.payments.GetByIntentID(intentID)
	if err != nil {
		return nil, nil, errors.NewInternalError("failed to reload payment after update", err)
	}

	e.logger.Info("payment status updated",
		"intent_id", intentID,
		"old_status", prior.Status,
		"new_status", newStatus,
		"rental_id", prior.RentalID)

	return prior, updated, nil
}
