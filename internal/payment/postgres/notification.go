package postgres

import (
	"github.com/gearshare/rental-payments/internal/core/datamodel/notification"
	paymentpkg "github.com/gearshare/rental-payments/internal/payment"
	"gorm.io/gorm"
)

// NotificationRepository implements payment.NotificationRepository using GORM
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) paymentpkg.NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(n *notification.Notification) error {
	return r.db.Create(n).Error
}
