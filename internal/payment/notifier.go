package payment

import (
	"log/slog"

	"github.com/gearshare/rental-payments/internal/core/datamodel/notification"
)

const (
	NotificationTypePayment = "payment"
	NotificationTypeRefund  = "refund"
	NotificationTypeBooking = "booking"
	NotificationTypePayout  = "payout"
)

// NotificationEmitter creates user-facing notification rows. Emission is
// best-effort: failures are logged and swallowed so they never block or
// roll back the payment flow.
type NotificationEmitter struct {
	notifications NotificationRepository
	logger        *slog.Logger
}

func NewNotificationEmitter(notifications NotificationRepository, logger *slog.Logger) *NotificationEmitter {
	return &NotificationEmitter{
		notifications: notifications,
		logger:        logger,
	}
}

func (e *NotificationEmitter) Emit(userID, title, message, notificationType string) {
	if userID == "" {
		return
	}

	n := &notification.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    notificationType,
	}

	if err := e.notifications.Create(n); err != nil {
		e.logger.Error("failed to create notification",
			"user_id", userID,
			"title", title,
			"error", err)
		return
	}

	e.logger.Debug("notification created",
		"user_id", userID,
		"title", title,
		"type", notificationType)
}
