package rental

import "time"

const (
	StatusPending       = "PENDING"
	StatusPaid          = "PAID"
	StatusPaymentFailed = "PAYMENT_FAILED"
	StatusActive        = "ACTIVE"
	StatusCompleted     = "COMPLETED"
	StatusCancelled     = "CANCELLED"
	StatusRefunded      = "REFUNDED"
)

const (
	PayoutStatusPending   = "PENDING"
	PayoutStatusCompleted = "COMPLETED"
)

// Rental is the booking whose status is partially derived from its payment.
type Rental struct {
	ID          string `gorm:"primaryKey"`
	EquipmentID string `gorm:"column:equipment_id;not null"`
	RenterID    string `gorm:"column:renter_id;not null"`

	Status      string  `gorm:"column:status;default:PENDING"`
	TotalAmount float64 `gorm:"column:total_amount;not null"`

	PayoutStatus string     `gorm:"column:payout_status;default:PENDING"`
	PayoutAmount *float64   `gorm:"column:payout_amount"`
	PayoutDate   *time.Time `gorm:"column:payout_date"`

	StartDate time.Time `gorm:"column:start_date"`
	EndDate   time.Time `gorm:"column:end_date"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`

	Equipment Equipment `gorm:"foreignKey:EquipmentID;references:ID"`
}

type Equipment struct {
	ID        string    `gorm:"primaryKey"`
	OwnerID   string    `gorm:"column:owner_id;not null"`
	Title     string    `gorm:"column:title;not null"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`
}

func (Equipment) TableName() string {
	return "equipment"
}
