package payment

import (
	"strconv"

	errors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/core/common/validation"
)

// Metadata key names mirror the gateway intent metadata bag.
const (
	MetaUserID          = "userId"
	MetaRentalID        = "rentalId"
	MetaOwnerID         = "ownerId"
	MetaEquipmentID     = "equipmentId"
	MetaEquipmentTitle  = "equipmentTitle"
	MetaSecurityDeposit = "securityDeposit"
	MetaRentalAmount    = "rentalAmount"
	MetaRentalStart     = "rentalStart"
	MetaRentalEnd       = "rentalEnd"
)

// IntentMetadata is the free-form request context snapshot attached to the
// gateway intent and persisted on the Payment. All values are strings on
// the wire; numeric fields are parsed on access.
type IntentMetadata map[string]string

func (m IntentMetadata) UserID() string   { return m[MetaUserID] }
func (m IntentMetadata) RentalID() string { return m[MetaRentalID] }
func (m IntentMetadata) OwnerID() string  { return m[MetaOwnerID] }

func (m IntentMetadata) SecurityDeposit() float64 {
	return m.parseFloat(MetaSecurityDeposit)
}

func (m IntentMetadata) RentalAmount() float64 {
	return m.parseFloat(MetaRentalAmount)
}

func (m IntentMetadata) parseFloat(key string) float64 {
	v, ok := m[key]
	if !ok || v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// CreateIntentRequest carries the amount in minor units (e.g. cents).
type CreateIntentRequest struct {
	Amount   int64          `json:"amount"`
	Currency string         `json:"currency"`
	Metadata IntentMetadata `json:"metadata"`
}

func (r *CreateIntentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("currency", r.Currency).Required().MinLength(3).MaxLength(3)
	validator.Field("metadata.userId", r.Metadata.UserID()).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CreateIntentResponse struct {
	IntentID     string  `json:"intent_id"`
	ClientSecret string  `json:"client_secret,omitempty"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	RentalID     string  `json:"rental_id"`
}

type RefundRequest struct {
	IntentID string   `json:"intent_id"`
	Amount   *float64 `json:"amount,omitempty"`
}

func (r *RefundRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("intent_id", r.IntentID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	if r.Amount != nil && *r.Amount <= 0 {
		return errors.NewValidationFieldError("amount", "amount must be positive", errors.ErrCodeInvalidAmount)
	}
	return nil
}

// DepositRefundRequest optionally narrows a deposit release to a partial
// amount in major units, e.g. after deducting a damage fee.
type DepositRefundRequest struct {
	Amount *float64 `json:"amount,omitempty"`
}

type BlockPaymentRequest struct {
	IntentID string `json:"intent_id"`
	Reason   string `json:"reason"`
}

func (r *BlockPaymentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("intent_id", r.IntentID).Required()
	validator.Field("reason", r.Reason).Required().MaxLength(500)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type AttachRentalRequest struct {
	RentalID string `json:"rental_id"`
}

func (r *AttachRentalRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("rental_id", r.RentalID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CreateAccountRequest struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Country string `json:"country"`
}

func (r *CreateAccountRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("user_id", r.UserID).Required()
	validator.Field("email", r.Email).Required()
	validator.Field("country", r.Country).Required().MinLength(2).MaxLength(2)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CreateAccountResponse struct {
	AccountID string `json:"account_id"`
	IsNew     bool   `json:"is_new"`
}

type AccountLinkRequest struct {
	AccountID  string `json:"account_id"`
	RefreshURL string `json:"refresh_url"`
	ReturnURL  string `json:"return_url"`
}

func (r *AccountLinkRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("account_id", r.AccountID).Required()
	validator.Field("refresh_url", r.RefreshURL).Required()
	validator.Field("return_url", r.ReturnURL).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type PayoutResponse struct {
	RentalID     string  `json:"rental_id"`
	TransferID   string  `json:"transfer_id"`
	PlatformFee  float64 `json:"platform_fee"`
	PayoutAmount float64 `json:"payout_amount"`
}
