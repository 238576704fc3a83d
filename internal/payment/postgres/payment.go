package postgres

import (
	"time"

	apperrors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/gearshare/rental-payments/internal/payment"
	"gorm.io/gorm"
)

// PaymentRepository implements payment.PaymentRepository using GORM
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *payment.Payment) error {
	return r.db.Create(p).Error
}

// GetByIntentID retrieves a payment by its gateway intent id
func (r *PaymentRepository) GetByIntentID(intentID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("gateway_intent_id = ?", intentID).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetCompletedByRentalID retrieves the completed payment for a rental
func (r *PaymentRepository) GetCompletedByRentalID(rentalID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("rental_id = ? AND status = ?", rentalID, payment.StatusCompleted).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateFields updates an arbitrary set of columns on a payment
func (r *PaymentRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now()

	return r.db.Model(&payment.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// GetDueRetries retrieves payments whose scheduled retry time has passed
func (r *PaymentRepository) GetDueRetries(now time.Time, limit int) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", payment.StatusRetryScheduled, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
