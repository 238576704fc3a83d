package gateway

import (
	"errors"
	"fmt"
)

type CaptureMethod string

const (
	CaptureMethodAutomatic CaptureMethod = "automatic"
	CaptureMethodManual    CaptureMethod = "manual"
)

type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusRequiresCapture       IntentStatus = "requires_capture"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// Intent is the gateway-side authorization record. Amounts are minor units.
type Intent struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         IntentStatus      `json:"status"`
	CaptureMethod  CaptureMethod     `json:"capture_method"`
	ClientSecret   string            `json:"client_secret,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type CreateIntentRequest struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	CaptureMethod CaptureMethod     `json:"capture_method"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (r *CreateIntentRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	if r.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}

type RefundRequest struct {
	IntentID string `json:"payment_intent"`
	Amount   *int64 `json:"amount,omitempty"`
}

type Refund struct {
	ID       string `json:"id"`
	IntentID string `json:"payment_intent"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

type AccountRequest struct {
	Email        string   `json:"email"`
	Country      string   `json:"country"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type Account struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Country        string `json:"country"`
	Type           string `json:"type"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

type AccountLinkRequest struct {
	AccountID  string `json:"account"`
	RefreshURL string `json:"refresh_url"`
	ReturnURL  string `json:"return_url"`
	Type       string `json:"type"`
}

type AccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type TransferRequest struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Destination   string            `json:"destination"`
	TransferGroup string            `json:"transfer_group,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Transfer struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Destination   string `json:"destination"`
	TransferGroup string `json:"transfer_group,omitempty"`
}

// Error is a tagged gateway call failure. Transient marks network and 5xx
// class failures that are safe to retry; declines and validation failures
// are permanent.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Transient  bool   `json:"-"`
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error (%s): %s", e.Code, e.Message)
}

// IsTransient reports whether err is a retryable gateway failure.
func IsTransient(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Transient
}
