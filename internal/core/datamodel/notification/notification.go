package notification

import "time"

type Notification struct {
	ID        int64     `gorm:"primaryKey"`
	UserID    string    `gorm:"column:user_id;not null;index"`
	Title     string    `gorm:"column:title;not null"`
	Message   string    `gorm:"column:message;not null"`
	Type      string    `gorm:"column:type;not null"`
	Read      bool      `gorm:"column:read;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
}
