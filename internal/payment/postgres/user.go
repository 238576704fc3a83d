package postgres

import (
	"time"

	apperrors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/core/datamodel/user"
	paymentpkg "github.com/gearshare/rental-payments/internal/payment"
	"gorm.io/gorm"
)

// UserRepository implements payment.UserRepository using GORM
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) paymentpkg.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(id string) (*user.User, error) {
	var u user.User
	err := r.db.Where("id = ?", id).First(&u).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SetConnectedAccount records the user's gateway connected account id
func (r *UserRepository) SetConnectedAccount(userID, accountID string) error {
	return r.db.Model(&user.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"connected_account_id": accountID,
			"updated_at":           time.Now(),
		}).Error
}
