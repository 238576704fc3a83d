package payment

import (
	"encoding/json"
	"time"
)

const (
	StatusPending        = "PENDING"
	StatusCompleted      = "COMPLETED"
	StatusFailed         = "FAILED"
	StatusBlocked        = "BLOCKED"
	StatusRetryScheduled = "RETRY_SCHEDULED"
	StatusRefunded       = "REFUNDED"
)

// Payment records one authorization/charge attempt. GatewayIntentID is the
// sole correlation key between gateway callbacks and local state.
type Payment struct {
	ID              int64  `gorm:"primaryKey"`
	GatewayIntentID string `gorm:"column:gateway_intent_id;not null;uniqueIndex"`
	UserID          string `gorm:"column:user_id;not null"`
	RentalID        string `gorm:"column:rental_id"`

	Amount                float64  `gorm:"column:amount;not null"`
	Currency              string   `gorm:"column:currency;not null"`
	SecurityDepositAmount *float64 `gorm:"column:security_deposit_amount"`
	RentalAmount          *float64 `gorm:"column:rental_amount"`

	Status string `gorm:"column:status;default:PENDING"`

	SecurityDepositReturned bool     `gorm:"column:security_deposit_returned;default:false"`
	OwnerPaidOut            bool     `gorm:"column:owner_paid_out;default:false"`
	PayoutAmount            *float64 `gorm:"column:payout_amount"`

	RetryCount  int        `gorm:"column:retry_count;default:0"`
	LastRetryAt *time.Time `gorm:"column:last_retry_at"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at"`

	IsBlocked   bool    `gorm:"column:is_blocked;default:false"`
	BlockReason *string `gorm:"column:block_reason"`

	Metadata json.RawMessage `gorm:"column:metadata;type:jsonb"`

	PaidAt     *time.Time `gorm:"column:paid_at"`
	FailedAt   *time.Time `gorm:"column:failed_at"`
	RefundedAt *time.Time `gorm:"column:refunded_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;default:now()"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;default:now()"`
}
