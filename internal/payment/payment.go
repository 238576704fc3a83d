package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	"github.com/gearshare/rental-payments/internal/core/datamodel/notification"
	"github.com/gearshare/rental-payments/internal/core/datamodel/payment"
	"github.com/gearshare/rental-payments/internal/core/datamodel/rental"
	"github.com/gearshare/rental-payments/internal/core/datamodel/user"
)

// GatewayAPI is the narrow contract against the external payment gateway.
type GatewayAPI interface {
	CreateIntent(ctx context.Context, req *gatewaytypes.CreateIntentRequest) (*gatewaytypes.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*gatewaytypes.Intent, error)
	UpdateIntent(ctx context.Context, intentID string, metadata map[string]string) (*gatewaytypes.Intent, error)
	CaptureIntent(ctx context.Context, intentID string, amountToCapture int64) (*gatewaytypes.Intent, error)
	CreateRefund(ctx context.Context, req *gatewaytypes.RefundRequest) (*gatewaytypes.Refund, error)
	CreateConnectedAccount(ctx context.Context, req *gatewaytypes.AccountRequest) (*gatewaytypes.Account, error)
	CreateAccountLink(ctx context.Context, req *gatewaytypes.AccountLinkRequest) (*gatewaytypes.AccountLink, error)
	CreateTransfer(ctx context.Context, req *gatewaytypes.TransferRequest) (*gatewaytypes.Transfer, error)
}

// PaymentRepository interface for payment database operations
type PaymentRepository interface {
	Create(p *payment.Payment) error
	GetByIntentID(intentID string) (*payment.Payment, error)
	GetCompletedByRentalID(rentalID string) (*payment.Payment, error)
	UpdateFields(id int64, fields map[string]interface{}) error
	GetDueRetries(now time.Time, limit int) ([]*payment.Payment, error)
}

// RentalRepository interface for the rental slice the orchestrator touches
type RentalRepository interface {
	GetByID(id string) (*rental.Rental, error)
	UpdateStatus(id string, status string) error
	UpdatePayout(id string, status string, amount float64, date time.Time) error
}

type UserRepository interface {
	GetByID(id string) (*user.User, error)
	SetConnectedAccount(userID, accountID string) error
}

type NotificationRepository interface {
	Create(n *notification.Notification) error
}

// RateLimiter is keyed per user for intent creation.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, key string) (exceeded bool, err error)
}

// ServiceAPI is the orchestration entry-point surface consumed by the
// transport layer, the event handlers and the retry sweeper.
type ServiceAPI interface {
	CreatePaymentIntent(ctx context.Context, req *CreateIntentRequest) (*gatewaytypes.Intent, *payment.Payment, error)
	HandlePaymentSuccess(ctx context.Context, intentID string) error
	HandlePaymentFailure(ctx context.Context, intentID string) error
	BlockPayment(ctx context.Context, intentID, reason string) error
	ScheduleRetry(ctx context.Context, intentID string) error
	AttachRental(ctx context.Context, intentID, rentalID string) error
}

const placeholderRentalPrefix = "temp_"

// NewPlaceholderRentalID synthesizes a rental id for payments created before
// the rental record exists.
func NewPlaceholderRentalID() string {
	return fmt.Sprintf("%s%d", placeholderRentalPrefix, time.Now().UnixMilli())
}

// IsPlaceholderRentalID reports whether the rental id is a synthesized
// placeholder rather than a persisted rental.
func IsPlaceholderRentalID(id string) bool {
	return strings.HasPrefix(id, placeholderRentalPrefix)
}
