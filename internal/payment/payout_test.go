package payment_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/gearshare/rental-payments/internal"
	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	paymentDatamodel "github.com/gearshare/rental-payments/internal/core/datamodel/payment"
	"github.com/gearshare/rental-payments/internal/core/datamodel/rental"
	"github.com/gearshare/rental-payments/internal/core/datamodel/user"
	"github.com/gearshare/rental-payments/internal/payment"
)

var _ = Describe("PayoutEngine", func() {
	var (
		gw      *mockGateway
		repo    *mockPaymentRepository
		rentals *mockRentalRepository
		users   *mockUserRepository
		notifs  *mockNotificationRepository
		engine  *payment.PayoutEngine
		ctx     context.Context
	)

	BeforeEach(func() {
		gw = newMockGateway()
		repo = newMockPaymentRepository()
		rentals = newMockRentalRepository()
		users = newMockUserRepository()
		notifs = newMockNotificationRepository()
		ctx = context.Background()
		testLog := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		retry := payment.NewRetryCoordinator(2, time.Millisecond, testLog)
		notifier := payment.NewNotificationEmitter(notifs, testLog)

		engine = payment.NewPayoutEngine(gw, repo, rentals, users, retry, notifier, 0.10, "usd", testLog)

		accountID := "acct_owner_1"
		users.users["usr_owner"] = &user.User{
			ID:                 "usr_owner",
			Email:              "owner@mail.com",
			Name:               "Owner",
			ConnectedAccountID: &accountID,
		}
		users.users["usr_new_owner"] = &user.User{
			ID:    "usr_new_owner",
			Email: "new@mail.com",
			Name:  "New Owner",
		}
		rentals.rentals["rent_1"] = &rental.Rental{
			ID:           "rent_1",
			EquipmentID:  "eq_1",
			RenterID:     "usr_renter",
			Status:       rental.StatusCompleted,
			TotalAmount:  100.00,
			PayoutStatus: rental.PayoutStatusPending,
			Equipment:    rental.Equipment{ID: "eq_1", OwnerID: "usr_owner", Title: "Camera"},
		}
	})

	Describe("ProcessOwnerPayout", func() {
		It("should transfer the total minus the platform fee", func() {
			resp, err := engine.ProcessOwnerPayout(ctx, "rent_1")

			Expect(err).ToNot(HaveOccurred())
			Expect(resp.PlatformFee).To(Equal(10.00))
			Expect(resp.PayoutAmount).To(Equal(90.00))
			Expect(resp.TransferID).To(Equal("tr_mock_1"))

			Expect(gw.transferCalls).To(HaveLen(1))
			Expect(gw.transferCalls[0].Amount).To(Equal(int64(9000)))
			Expect(gw.transferCalls[0].Destination).To(Equal("acct_owner_1"))
			Expect(gw.transferCalls[0].TransferGroup).To(Equal("rent_1"))
		})

		It("should record the payout on the rental and notify the owner", func() {
			_, err := engine.ProcessOwnerPayout(ctx, "rent_1")

			Expect(err).ToNot(HaveOccurred())
			r := rentals.rentals["rent_1"]
			Expect(r.PayoutStatus).To(Equal(rental.PayoutStatusCompleted))
			Expect(r.PayoutAmount).ToNot(BeNil())
			Expect(*r.PayoutAmount).To(Equal(90.00))
			Expect(r.PayoutDate).ToNot(BeNil())
			Expect(notifs.titlesFor("usr_owner")).To(ContainElement("Payout Processed"))
		})

		It("should mark the completed payment as paid out", func() {
			Expect(repo.Create(&paymentDatamodel.Payment{
				GatewayIntentID: "pi_1",
				UserID:          "usr_renter",
				RentalID:        "rent_1",
				Amount:          100.00,
				Currency:        "USD",
				Status:          paymentDatamodel.StatusCompleted,
			})).To(Succeed())

			_, err := engine.ProcessOwnerPayout(ctx, "rent_1")

			Expect(err).ToNot(HaveOccurred())
			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.OwnerPaidOut).To(BeTrue())
			Expect(updated.PayoutAmount).ToNot(BeNil())
			Expect(*updated.PayoutAmount).To(Equal(90.00))
		})

		It("should reject a rental that is not completed", func() {
			rentals.rentals["rent_1"].Status = rental.StatusActive

			_, err := engine.ProcessOwnerPayout(ctx, "rent_1")

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodePayoutPrecondition)).To(BeTrue())
			Expect(gw.transferCalls).To(BeEmpty())
		})

		It("should reject a duplicate payout", func() {
			_, err := engine.ProcessOwnerPayout(ctx, "rent_1")
			Expect(err).ToNot(HaveOccurred())

			_, err = engine.ProcessOwnerPayout(ctx, "rent_1")

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodePayoutPrecondition)).To(BeTrue())
			Expect(gw.transferCalls).To(HaveLen(1))
		})

		It("should reject an owner without a connected account", func() {
			rentals.rentals["rent_1"].Equipment.OwnerID = "usr_new_owner"

			_, err := engine.ProcessOwnerPayout(ctx, "rent_1")

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodePayoutPrecondition)).To(BeTrue())
			Expect(gw.transferCalls).To(BeEmpty())
		})

		It("should reject an unknown rental", func() {
			_, err := engine.ProcessOwnerPayout(ctx, "rent_missing")
			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodeRentalNotFound)).To(BeTrue())
		})

		It("should not record a payout when the transfer fails", func() {
			gw.transferErr = &gatewaytypes.Error{StatusCode: 400, Code: "insufficient_funds", Message: "no balance"}

			_, err := engine.ProcessOwnerPayout(ctx, "rent_1")

			Expect(err).To(HaveOccurred())
			Expect(rentals.rentals["rent_1"].PayoutStatus).To(Equal(rental.PayoutStatusPending))
		})
	})

	Describe("CreateConnectAccount", func() {
		It("should create and persist a new connected account", func() {
			account, isNew, err := engine.CreateConnectAccount(ctx, &payment.CreateAccountRequest{
				UserID:  "usr_new_owner",
				Email:   "new@mail.com",
				Country: "US",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(isNew).To(BeTrue())
			Expect(account.ID).To(Equal("acct_mock_1"))
			Expect(users.users["usr_new_owner"].ConnectedAccountID).ToNot(BeNil())
			Expect(*users.users["usr_new_owner"].ConnectedAccountID).To(Equal("acct_mock_1"))
		})

		It("should return the existing account without calling the gateway", func() {
			account, isNew, err := engine.CreateConnectAccount(ctx, &payment.CreateAccountRequest{
				UserID:  "usr_owner",
				Email:   "owner@mail.com",
				Country: "US",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(isNew).To(BeFalse())
			Expect(account.ID).To(Equal("acct_owner_1"))
		})

		It("should reject an unknown user", func() {
			_, _, err := engine.CreateConnectAccount(ctx, &payment.CreateAccountRequest{
				UserID:  "usr_missing",
				Email:   "x@mail.com",
				Country: "US",
			})

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodeUserNotFound)).To(BeTrue())
		})
	})

	Describe("CreateAccountLink", func() {
		It("should return an onboarding link", func() {
			link, err := engine.CreateAccountLink(ctx, &payment.AccountLinkRequest{
				AccountID:  "acct_owner_1",
				RefreshURL: "https://app.example.com/refresh",
				ReturnURL:  "https://app.example.com/return",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(link.URL).To(ContainSubstring("acct_owner_1"))
		})
	})
})
