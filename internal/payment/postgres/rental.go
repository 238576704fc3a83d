package postgres

import (
	"time"

	apperrors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/core/datamodel/rental"
	paymentpkg "github.com/gearshare/rental-payments/internal/payment"
	"gorm.io/gorm"
)

// RentalRepository implements payment.RentalRepository using GORM
type RentalRepository struct {
	db *gorm.DB
}

func NewRentalRepository(db *gorm.DB) paymentpkg.RentalRepository {
	return &RentalRepository{db: db}
}

// GetByID retrieves a rental with its equipment preloaded
func (r *RentalRepository) GetByID(id string) (*rental.Rental, error) {
	var rec rental.Rental
	err := r.db.Preload("Equipment").Where("id = ?", id).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrRentalNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *RentalRepository) UpdateStatus(id string, status string) error {
	return r.db.Model(&rental.Rental{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// UpdatePayout records a processed payout on the rental
func (r *RentalRepository) UpdatePayout(id string, status string, amount float64, date time.Time) error {
	return r.db.Model(&rental.Rental{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payout_status": status,
			"payout_amount": amount,
			"payout_date":   date,
			"updated_at":    time.Now(),
		}).Error
}
