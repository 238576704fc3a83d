package payment_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/gearshare/rental-payments/internal"
	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	paymentDatamodel "github.com/gearshare/rental-payments/internal/core/datamodel/payment"
	"github.com/gearshare/rental-payments/internal/core/datamodel/rental"
	"github.com/gearshare/rental-payments/internal/payment"
)

var _ = Describe("PaymentService", func() {
	var (
		gw       *mockGateway
		repo     *mockPaymentRepository
		rentals  *mockRentalRepository
		notifs   *mockNotificationRepository
		limiter  *mockRateLimiter
		svc      *payment.Service
		ctx      context.Context
		testLog  *slog.Logger
	)

	BeforeEach(func() {
		gw = newMockGateway()
		repo = newMockPaymentRepository()
		rentals = newMockRentalRepository()
		notifs = newMockNotificationRepository()
		limiter = &mockRateLimiter{}
		ctx = context.Background()
		testLog = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		transitions := payment.NewStateTransitionEngine(repo, rentals, testLog)
		retry := payment.NewRetryCoordinator(2, time.Millisecond, testLog)
		notifier := payment.NewNotificationEmitter(notifs, testLog)

		svc = payment.NewService(gw, repo, rentals, transitions, retry, notifier, limiter, testLog)
	})

	Describe("CreatePaymentIntent", func() {
		It("should store the amount in major units with uppercase currency and PENDING status", func() {
			req := &payment.CreateIntentRequest{
				Amount:   100000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{payment.MetaUserID: "usr_1"},
			}

			intent, record, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).ToNot(HaveOccurred())
			Expect(intent.ID).ToNot(BeEmpty())
			Expect(record.Amount).To(Equal(1000.00))
			Expect(record.Currency).To(Equal("USD"))
			Expect(record.Status).To(Equal(paymentDatamodel.StatusPending))
		})

		It("should synthesize a placeholder rental id when no rental exists yet", func() {
			req := &payment.CreateIntentRequest{
				Amount:   50000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{payment.MetaUserID: "usr_1"},
			}

			_, record, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).ToNot(HaveOccurred())
			Expect(payment.IsPlaceholderRentalID(record.RentalID)).To(BeTrue())
		})

		It("should keep the rental id from metadata when provided", func() {
			req := &payment.CreateIntentRequest{
				Amount:   50000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{
					payment.MetaUserID:   "usr_1",
					payment.MetaRentalID: "rent_42",
				},
			}

			_, record, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).ToNot(HaveOccurred())
			Expect(record.RentalID).To(Equal("rent_42"))
		})

		It("should use automatic capture when there is no security deposit", func() {
			req := &payment.CreateIntentRequest{
				Amount:   50000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{payment.MetaUserID: "usr_1"},
			}

			intent, _, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).ToNot(HaveOccurred())
			Expect(intent.CaptureMethod).To(Equal(gatewaytypes.CaptureMethodAutomatic))
		})

		It("should use manual capture and record the deposit when a security deposit is present", func() {
			req := &payment.CreateIntentRequest{
				Amount:   100000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{
					payment.MetaUserID:          "usr_1",
					payment.MetaSecurityDeposit: "200",
					payment.MetaRentalAmount:    "800",
				},
			}

			intent, record, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).ToNot(HaveOccurred())
			Expect(intent.CaptureMethod).To(Equal(gatewaytypes.CaptureMethodManual))
			Expect(record.SecurityDepositAmount).ToNot(BeNil())
			Expect(*record.SecurityDepositAmount).To(Equal(200.00))
			Expect(record.RentalAmount).ToNot(BeNil())
			Expect(*record.RentalAmount).To(Equal(800.00))
		})

		It("should reject the request when the rate limit is exceeded", func() {
			limiter.exceeded = true

			req := &payment.CreateIntentRequest{
				Amount:   50000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{payment.MetaUserID: "usr_1"},
			}

			_, _, err := svc.CreatePaymentIntent(ctx, req)

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodeRateLimitExceeded)).To(BeTrue())
			Expect(gw.createCalls).To(Equal(0))
		})

		It("should allow the request when the rate limiter itself fails", func() {
			limiter.err = context.DeadlineExceeded

			req := &payment.CreateIntentRequest{
				Amount:   50000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{payment.MetaUserID: "usr_1"},
			}

			_, _, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).ToNot(HaveOccurred())
			Expect(gw.createCalls).To(Equal(1))
		})

		It("should reject a zero amount", func() {
			req := &payment.CreateIntentRequest{
				Amount:   0,
				Currency: "usd",
				Metadata: payment.IntentMetadata{payment.MetaUserID: "usr_1"},
			}

			_, _, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).To(HaveOccurred())
			Expect(gw.createCalls).To(Equal(0))
		})

		It("should propagate gateway errors without wrapping", func() {
			gatewayErr := &gatewaytypes.Error{StatusCode: 402, Code: "card_declined", Message: "declined"}
			gw.createErr = gatewayErr

			req := &payment.CreateIntentRequest{
				Amount:   50000,
				Currency: "usd",
				Metadata: payment.IntentMetadata{payment.MetaUserID: "usr_1"},
			}

			_, _, err := svc.CreatePaymentIntent(ctx, req)

			Expect(err).To(MatchError(gatewayErr))
		})
	})

	Describe("HandlePaymentSuccess", func() {
		var seedPayment func(mods func(*paymentDatamodel.Payment)) *paymentDatamodel.Payment

		BeforeEach(func() {
			rentals.rentals["rent_1"] = &rental.Rental{
				ID:          "rent_1",
				EquipmentID: "eq_1",
				RenterID:    "usr_renter",
				Status:      rental.StatusPending,
				TotalAmount: 1000.00,
			}

			seedPayment = func(mods func(*paymentDatamodel.Payment)) *paymentDatamodel.Payment {
				meta, _ := json.Marshal(map[string]string{payment.MetaOwnerID: "usr_owner"})
				p := &paymentDatamodel.Payment{
					GatewayIntentID: "pi_1",
					UserID:          "usr_renter",
					RentalID:        "rent_1",
					Amount:          1000.00,
					Currency:        "USD",
					Status:          paymentDatamodel.StatusPending,
					Metadata:        meta,
				}
				if mods != nil {
					mods(p)
				}
				Expect(repo.Create(p)).To(Succeed())
				gw.intents["pi_1"] = &gatewaytypes.Intent{
					ID:     "pi_1",
					Amount: 100000,
					Status: gatewaytypes.IntentStatusSucceeded,
				}
				return p
			}
		})

		It("should complete the payment and project PAID onto the rental", func() {
			seedPayment(nil)

			err := svc.HandlePaymentSuccess(ctx, "pi_1")

			Expect(err).ToNot(HaveOccurred())
			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(updated.PaidAt).ToNot(BeNil())
			Expect(rentals.rentals["rent_1"].Status).To(Equal(rental.StatusPaid))
		})

		It("should capture only the rental portion when a deposit is held", func() {
			seedPayment(func(p *paymentDatamodel.Payment) {
				deposit := 200.00
				rentalAmount := 800.00
				p.SecurityDepositAmount = &deposit
				p.RentalAmount = &rentalAmount
			})
			gw.intents["pi_1"].Status = gatewaytypes.IntentStatusRequiresCapture

			err := svc.HandlePaymentSuccess(ctx, "pi_1")

			Expect(err).ToNot(HaveOccurred())
			Expect(gw.captureCalls).To(HaveLen(1))
			Expect(gw.captureCalls[0].amount).To(Equal(int64(80000)))
		})

		It("should not capture when the payment has no deposit", func() {
			seedPayment(nil)

			err := svc.HandlePaymentSuccess(ctx, "pi_1")

			Expect(err).ToNot(HaveOccurred())
			Expect(gw.captureCalls).To(BeEmpty())
		})

		It("should notify the renter and the owner", func() {
			seedPayment(nil)

			err := svc.HandlePaymentSuccess(ctx, "pi_1")

			Expect(err).ToNot(HaveOccurred())
			Expect(notifs.titlesFor("usr_renter")).To(ContainElement("Payment Successful"))
			Expect(notifs.titlesFor("usr_owner")).To(ContainElement("New Rental Booking"))
		})

		It("should ignore a duplicate success callback", func() {
			seedPayment(nil)

			Expect(svc.HandlePaymentSuccess(ctx, "pi_1")).To(Succeed())
			notificationsAfterFirst := len(notifs.created)

			Expect(svc.HandlePaymentSuccess(ctx, "pi_1")).To(Succeed())

			Expect(notifs.created).To(HaveLen(notificationsAfterFirst))
			Expect(gw.captureCalls).To(BeEmpty())
		})

		It("should fail for an unknown intent", func() {
			err := svc.HandlePaymentSuccess(ctx, "pi_unknown")
			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodePaymentNotFound)).To(BeTrue())
		})
	})

	Describe("HandlePaymentFailure", func() {
		BeforeEach(func() {
			rentals.rentals["rent_1"] = &rental.Rental{
				ID: "rent_1", Status: rental.StatusPending, TotalAmount: 1000.00,
			}
			Expect(repo.Create(&paymentDatamodel.Payment{
				GatewayIntentID: "pi_1",
				UserID:          "usr_renter",
				RentalID:        "rent_1",
				Amount:          1000.00,
				Currency:        "USD",
				Status:          paymentDatamodel.StatusPending,
			})).To(Succeed())
		})

		It("should fail the payment and project PAYMENT_FAILED onto the rental", func() {
			err := svc.HandlePaymentFailure(ctx, "pi_1")

			Expect(err).ToNot(HaveOccurred())
			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusFailed))
			Expect(updated.FailedAt).ToNot(BeNil())
			Expect(rentals.rentals["rent_1"].Status).To(Equal(rental.StatusPaymentFailed))
			Expect(notifs.titlesFor("usr_renter")).To(ContainElement("Payment Failed"))
		})

		It("should swallow a stale failure callback after completion", func() {
			now := time.Now()
			Expect(repo.UpdateFields(1, map[string]interface{}{
				"status":  paymentDatamodel.StatusCompleted,
				"paid_at": &now,
			})).To(Succeed())

			err := svc.HandlePaymentFailure(ctx, "pi_1")

			Expect(err).ToNot(HaveOccurred())
			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusCompleted))
		})
	})

	Describe("BlockPayment", func() {
		BeforeEach(func() {
			Expect(repo.Create(&paymentDatamodel.Payment{
				GatewayIntentID: "pi_1",
				UserID:          "usr_renter",
				RentalID:        "temp_123",
				Amount:          1000.00,
				Currency:        "USD",
				Status:          paymentDatamodel.StatusPending,
			})).To(Succeed())
		})

		It("should block the payment and record the reason", func() {
			err := svc.BlockPayment(ctx, "pi_1", "velocity check failed")

			Expect(err).ToNot(HaveOccurred())
			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusBlocked))
			Expect(updated.IsBlocked).To(BeTrue())
			Expect(updated.BlockReason).ToNot(BeNil())
			Expect(*updated.BlockReason).To(Equal("velocity check failed"))
			Expect(notifs.titlesFor("usr_renter")).To(ContainElement("Payment Blocked"))
		})

		It("should reject blocking a refunded payment", func() {
			now := time.Now()
			Expect(repo.UpdateFields(1, map[string]interface{}{
				"status":      paymentDatamodel.StatusRefunded,
				"refunded_at": &now,
			})).To(Succeed())

			err := svc.BlockPayment(ctx, "pi_1", "too late")

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodeInvalidTransition)).To(BeTrue())
		})
	})

	Describe("ScheduleRetry", func() {
		BeforeEach(func() {
			Expect(repo.Create(&paymentDatamodel.Payment{
				GatewayIntentID: "pi_1",
				UserID:          "usr_renter",
				RentalID:        "temp_123",
				Amount:          1000.00,
				Currency:        "USD",
				Status:          paymentDatamodel.StatusFailed,
			})).To(Succeed())
		})

		It("should increment the retry count and back off exponentially", func() {
			before := time.Now()

			err := svc.ScheduleRetry(ctx, "pi_1")

			Expect(err).ToNot(HaveOccurred())
			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusRetryScheduled))
			Expect(updated.RetryCount).To(Equal(1))
			Expect(updated.LastRetryAt).ToNot(BeNil())
			Expect(updated.NextRetryAt).ToNot(BeNil())
			Expect(updated.NextRetryAt.Sub(before)).To(BeNumerically("~", 2*time.Minute, 5*time.Second))
		})

		It("should double the delay on the next attempt", func() {
			Expect(svc.ScheduleRetry(ctx, "pi_1")).To(Succeed())

			before := time.Now()
			Expect(svc.ScheduleRetry(ctx, "pi_1")).To(Succeed())

			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.RetryCount).To(Equal(2))
			Expect(updated.NextRetryAt.Sub(before)).To(BeNumerically("~", 4*time.Minute, 5*time.Second))
		})
	})

	Describe("AttachRental", func() {
		BeforeEach(func() {
			rentals.rentals["rent_1"] = &rental.Rental{
				ID: "rent_1", Status: rental.StatusPending, TotalAmount: 1000.00,
			}
		})

		It("should replace a placeholder rental id and sync gateway metadata", func() {
			Expect(repo.Create(&paymentDatamodel.Payment{
				GatewayIntentID: "pi_1",
				UserID:          "usr_renter",
				RentalID:        "temp_1700000000000",
				Amount:          1000.00,
				Currency:        "USD",
				Status:          paymentDatamodel.StatusCompleted,
			})).To(Succeed())

			err := svc.AttachRental(ctx, "pi_1", "rent_1")

			Expect(err).ToNot(HaveOccurred())
			updated, _ := repo.GetByIntentID("pi_1")
			Expect(updated.RentalID).To(Equal("rent_1"))
			Expect(gw.updateCalls).To(HaveLen(1))
			Expect(gw.updateCalls[0][payment.MetaRentalID]).To(Equal("rent_1"))
			Expect(rentals.rentals["rent_1"].Status).To(Equal(rental.StatusPaid))
		})

		It("should reject attaching when a real rental is already bound", func() {
			Expect(repo.Create(&paymentDatamodel.Payment{
				GatewayIntentID: "pi_1",
				UserID:          "usr_renter",
				RentalID:        "rent_other",
				Amount:          1000.00,
				Currency:        "USD",
				Status:          paymentDatamodel.StatusPending,
			})).To(Succeed())

			err := svc.AttachRental(ctx, "pi_1", "rent_1")

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodeRentalAlreadyAttached)).To(BeTrue())
		})

		It("should reject attaching a rental that does not exist", func() {
			Expect(repo.Create(&paymentDatamodel.Payment{
				GatewayIntentID: "pi_1",
				UserID:          "usr_renter",
				RentalID:        "temp_1",
				Amount:          1000.00,
				Currency:        "USD",
				Status:          paymentDatamodel.StatusPending,
			})).To(Succeed())

			err := svc.AttachRental(ctx, "pi_1", "rent_missing")

			Expect(apperrors.IsErrorCode(err, apperrors.ErrCodeRentalNotFound)).To(BeTrue())
		})
	})
})
