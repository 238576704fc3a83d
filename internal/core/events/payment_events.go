package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

type PaymentCompletedEvent struct {
	BaseEvent
	IntentID string  `json:"intent_id"`
	RentalID string  `json:"rental_id"`
	UserID   string  `json:"user_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func NewPaymentCompletedEvent(intentID, rentalID, userID string, amount float64, currency string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id": intentID,
				"rental_id": rentalID,
				"user_id":   userID,
				"amount":    amount,
				"currency":  currency,
			},
		},
		IntentID: intentID,
		RentalID: rentalID,
		UserID:   userID,
		Amount:   amount,
		Currency: currency,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	IntentID      string `json:"intent_id"`
	UserID        string `json:"user_id"`
	FailureReason string `json:"failure_reason"`
	RetryCount    int    `json:"retry_count"`
}

func NewPaymentFailedEvent(intentID, userID, failureReason string, retryCount int) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id":      intentID,
				"user_id":        userID,
				"failure_reason": failureReason,
				"retry_count":    retryCount,
			},
		},
		IntentID:      intentID,
		UserID:        userID,
		FailureReason: failureReason,
		RetryCount:    retryCount,
	}
}
