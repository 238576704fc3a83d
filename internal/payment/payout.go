package payment

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	errors "github.com/gearshare/rental-payments/internal"
	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	"github.com/gearshare/rental-payments/internal/core/datamodel/rental"
)

// PayoutEngine moves owner earnings, net of the platform fee, to the owner's
// connected gateway account after a rental completes.
type PayoutEngine struct {
	gateway  GatewayAPI
	payments PaymentRepository
	rentals  RentalRepository
	users    UserRepository
	retry    *RetryCoordinator
	notifier *NotificationEmitter
	feeRate  float64
	currency string
	logger   *slog.Logger
}

func NewPayoutEngine(
	gateway GatewayAPI,
	payments PaymentRepository,
	rentals RentalRepository,
	users UserRepository,
	retry *RetryCoordinator,
	notifier *NotificationEmitter,
	feeRate float64,
	currency string,
	logger *slog.Logger,
) *PayoutEngine {
	if feeRate <= 0 || feeRate >= 1 {
		feeRate = 0.10
	}
	if currency == "" {
		currency = "usd"
	}
	return &PayoutEngine{
		gateway:  gateway,
		payments: payments,
		rentals:  rentals,
		users:    users,
		retry:    retry,
		notifier: notifier,
		feeRate:  feeRate,
		currency: strings.ToLower(currency),
		logger:   logger,
	}
}

// CreateConnectAccount provisions a connected gateway account for an owner.
// Idempotent: an owner who already has one gets the existing account back.
func (e *PayoutEngine) CreateConnectAccount(ctx context.Context, req *CreateAccountRequest) (*gatewaytypes.Account, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	owner, err := e.users.GetByID(req.UserID)
	if err != nil {
		return nil, false, errors.ErrUserNotFound
	}

	if owner.ConnectedAccountID != nil && *owner.ConnectedAccountID != "" {
		return &gatewaytypes.Account{ID: *owner.ConnectedAccountID}, false, nil
	}

	var account *gatewaytypes.Account
	err = e.retry.WithRetry(ctx, "create_connected_account", func() error {
		var createErr error
		account, createErr = e.gateway.CreateConnectedAccount(ctx, &gatewaytypes.AccountRequest{
			Email:        req.Email,
			Country:      req.Country,
			Type:         "express",
			Capabilities: []string{"transfers"},
		})
		return createErr
	})
	if err != nil {
		e.logger.Error("connected account creation failed", "user_id", req.UserID, "error", err)
		return nil, false, err
	}

	if err := e.users.SetConnectedAccount(req.UserID, account.ID); err != nil {
		return nil, false, errors.NewInternalError("failed to save connected account", err)
	}

	e.logger.Info("connected account created",
		"user_id", req.UserID,
		"account_id", account.ID)

	return account, true, nil
}

// CreateAccountLink generates an onboarding link for a connected account.
func (e *PayoutEngine) CreateAccountLink(ctx context.Context, req *AccountLinkRequest) (*gatewaytypes.AccountLink, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var link *gatewaytypes.AccountLink
	err := e.retry.WithRetry(ctx, "create_account_link", func() error {
		var linkErr error
		link, linkErr = e.gateway.CreateAccountLink(ctx, &gatewaytypes.AccountLinkRequest{
			AccountID:  req.AccountID,
			RefreshURL: req.RefreshURL,
			ReturnURL:  req.ReturnURL,
			Type:       "account_onboarding",
		})
		return linkErr
	})
	if err != nil {
		e.logger.Error("account link creation failed", "account_id", req.AccountID, "error", err)
		return nil, err
	}

	return link, nil
}

// ProcessOwnerPayout transfers the rental total minus the platform fee to the
// equipment owner. Preconditions are checked before any money moves: the
// rental must be completed, not yet paid out, and the owner must have a
// provisioned connected account.
func (e *PayoutEngine) ProcessOwnerPayout(ctx context.Context, rentalID string) (*PayoutResponse, error) {
	r, err := e.rentals.GetByID(rentalID)
	if err != nil {
		return nil, errors.ErrRentalNotFound
	}

	if r.Status != rental.StatusCompleted {
		return nil, errors.NewPayoutPreconditionError("rental is not completed")
	}
	if r.PayoutStatus == rental.PayoutStatusCompleted {
		return nil, errors.NewPayoutPreconditionError("payout already processed for this rental")
	}

	owner, err := e.users.GetByID(r.Equipment.OwnerID)
	if err != nil {
		return nil, errors.ErrUserNotFound
	}
	if owner.ConnectedAccountID == nil || *owner.ConnectedAccountID == "" {
		return nil, errors.NewPayoutPreconditionError("owner has no connected payout account")
	}

	platformFee := math.Round(r.TotalAmount*e.feeRate*100) / 100
	ownerMinor := int64(math.Round((r.TotalAmount - platformFee) * 100))

	var transfer *gatewaytypes.Transfer
	err = e.retry.WithRetry(ctx, "create_transfer", func() error {
		var transferErr error
		transfer, transferErr = e.gateway.CreateTransfer(ctx, &gatewaytypes.TransferRequest{
			Amount:        ownerMinor,
			Currency:      e.currency,
			Destination:   *owner.ConnectedAccountID,
			TransferGroup: rentalID,
			Metadata: map[string]string{
				MetaRentalID: rentalID,
				MetaOwnerID:  owner.ID,
			},
		})
		return transferErr
	})
	if err != nil {
		e.logger.Error("owner payout transfer failed",
			"rental_id", rentalID,
			"owner_id", owner.ID,
			"amount_minor", ownerMinor,
			"error", err)
		return nil, err
	}

	payoutAmount := float64(ownerMinor) / 100
	now := time.Now()

	if err := e.rentals.UpdatePayout(rentalID, rental.PayoutStatusCompleted, payoutAmount, now); err != nil {
		return nil, errors.NewInternalError("failed to record payout on rental", err)
	}

	if p, err := e.payments.GetCompletedByRentalID(rentalID); err == nil {
		if err := e.payments.UpdateFields(p.ID, map[string]interface{}{
			"owner_paid_out": true,
			"payout_amount":  payoutAmount,
		}); err != nil {
			e.logger.Warn("failed to mark payout on payment record",
				"rental_id", rentalID,
				"payment_id", p.ID,
				"error", err)
		}
	}

	e.logger.Info("owner payout processed",
		"rental_id", rentalID,
		"owner_id", owner.ID,
		"transfer_id", transfer.ID,
		"platform_fee", platformFee,
		"payout_amount", payoutAmount)

	e.notifier.Emit(owner.ID, "Payout Processed",
		"Your rental earnings have been transferred to your account.", NotificationTypePayout)

	return &PayoutResponse{
		RentalID:     rentalID,
		TransferID:   transfer.ID,
		PlatformFee:  platformFee,
		PayoutAmount: payoutAmount,
	}, nil
}
