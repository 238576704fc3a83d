package user

import "time"

// User is the payee-relevant slice of the marketplace user record.
// ConnectedAccountID is nil until the owner is provisioned for payouts.
type User struct {
	ID                 string    `gorm:"primaryKey"`
	Email              string    `gorm:"column:email;not null;uniqueIndex"`
	Name               string    `gorm:"column:name"`
	ConnectedAccountID *string   `gorm:"column:connected_account_id"`
	CreatedAt          time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time `gorm:"column:updated_at;default:now()"`
}
