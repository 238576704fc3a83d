package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeRateLimit    ErrorType = "RATE_LIMIT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeMissingUserID    ErrorCode = "MISSING_USER_ID"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodePaymentNotFound       ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeRentalNotFound        ErrorCode = "RENTAL_NOT_FOUND"
	ErrCodeUserNotFound          ErrorCode = "USER_NOT_FOUND"
	ErrCodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	ErrCodeRentalAlreadyAttached ErrorCode = "RENTAL_ALREADY_ATTACHED"

	ErrCodeNoSecurityDeposit     ErrorCode = "NO_SECURITY_DEPOSIT"
	ErrCodeRefundExceedsCaptured ErrorCode = "REFUND_EXCEEDS_CAPTURED"

	ErrCodePayoutPrecondition ErrorCode = "PAYOUT_PRECONDITION_FAILED"

	ErrCodeGatewayError ErrorCode = "GATEWAY_ERROR"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Code:       ErrCodeRateLimitExceeded,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewInvalidTransitionError signals a rejected payment status transition,
// typically a duplicate or out-of-order gateway callback.
func NewInvalidTransitionError(from, to string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeInvalidTransition,
		Message:    fmt.Sprintf("payment status transition %s -> %s is not allowed", from, to),
		StatusCode: http.StatusConflict,
	}
}

// NewPayoutPreconditionError covers every fatal payout precondition: rental
// not completed, owner unprovisioned, payout already processed.
func NewPayoutPreconditionError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodePayoutPrecondition,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

var (
	ErrRateLimitExceeded = NewRateLimitError("Too many payment attempts, please try again later")

	ErrPaymentNotFound = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrRentalNotFound  = NewNotFoundError("Rental not found", ErrCodeRentalNotFound)
	ErrUserNotFound    = NewNotFoundError("User not found", ErrCodeUserNotFound)

	ErrNoSecurityDeposit = NewValidationError("payment has no security deposit to refund", ErrCodeNoSecurityDeposit)

	ErrInvalidToken = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

// IsErrorCode reports whether err is an AppError carrying the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
