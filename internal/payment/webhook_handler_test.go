package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	paymentDatamodel "github.com/gearshare/rental-payments/internal/core/datamodel/payment"
	"github.com/gearshare/rental-payments/internal/core/datamodel/rental"
	"github.com/gearshare/rental-payments/internal/core/events"
	"github.com/gearshare/rental-payments/internal/payment"
	"github.com/gearshare/rental-payments/internal/transport"
)

var _ = Describe("WebhookHandler", func() {
	var (
		gw      *mockGateway
		repo    *mockPaymentRepository
		rentals *mockRentalRepository
		notifs  *mockNotificationRepository
		handler *payment.WebhookHandler
	)

	postCallback := func(body interface{}) *httptest.ResponseRecorder {
		payload, err := json.Marshal(body)
		Expect(err).ToNot(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		handler.HandlePaymentCallback(rec, req)
		return rec
	}

	BeforeEach(func() {
		gw = newMockGateway()
		repo = newMockPaymentRepository()
		rentals = newMockRentalRepository()
		notifs = newMockNotificationRepository()
		testLog := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		transitions := payment.NewStateTransitionEngine(repo, rentals, testLog)
		retry := payment.NewRetryCoordinator(2, time.Millisecond, testLog)
		notifier := payment.NewNotificationEmitter(notifs, testLog)
		svc := payment.NewService(gw, repo, rentals, transitions, retry, notifier, nil, testLog)

		eventBus := events.NewEventBus(testLog)
		baseHandler := transport.NewBaseHandler(testLog)
		handler = payment.NewWebhookHandler(baseHandler, svc, repo, eventBus, testLog)

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
		gw.intents["pi_1"] = &gatewaytypes.Intent{
			ID:     "pi_1",
			Amount: 100000,
			Status: gatewaytypes.IntentStatusSucceeded,
		}
	})

	It("should complete the payment on a succeeded event", func() {
		rec := postCallback(payment.GatewayCallbackRequest{
			EventID:   "evt_1",
			EventType: payment.CallbackEventIntentSucceeded,
			IntentID:  "pi_1",
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusCompleted))
		Expect(rentals.rentals["rent_1"].Status).To(Equal(rental.StatusPaid))
	})

	It("should fail the payment on a failed event", func() {
		rec := postCallback(payment.GatewayCallbackRequest{
			EventID:       "evt_2",
			EventType:     payment.CallbackEventIntentFailed,
			IntentID:      "pi_1",
			FailureReason: "card_declined",
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusFailed))
	})

	It("should accept replayed succeeded events without side effects", func() {
		Expect(postCallback(payment.GatewayCallbackRequest{
			EventType: payment.CallbackEventIntentSucceeded,
			IntentID:  "pi_1",
		}).Code).To(Equal(http.StatusOK))
		notificationsAfterFirst := len(notifs.created)

		rec := postCallback(payment.GatewayCallbackRequest{
			EventType: payment.CallbackEventIntentSucceeded,
			IntentID:  "pi_1",
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(notifs.created).To(HaveLen(notificationsAfterFirst))
	})

	It("should acknowledge a succeeded event arriving after a refund", func() {
		now := time.Now()
		Expect(repo.UpdateFields(1, map[string]interface{}{
			"status":      paymentDatamodel.StatusRefunded,
			"refunded_at": &now,
		})).To(Succeed())

		rec := postCallback(payment.GatewayCallbackRequest{
			EventType: payment.CallbackEventIntentSucceeded,
			IntentID:  "pi_1",
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp payment.GatewayCallbackResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal("ignored"))
		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusRefunded))
		Expect(notifs.created).To(BeEmpty())
	})

	It("should ignore unhandled event types", func() {
		rec := postCallback(payment.GatewayCallbackRequest{
			EventType: "payment_intent.created",
			IntentID:  "pi_1",
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusPending))
	})

	It("should reject a callback without an intent id", func() {
		rec := postCallback(payment.GatewayCallbackRequest{
			EventType: payment.CallbackEventIntentSucceeded,
		})

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject a callback without an event type", func() {
		rec := postCallback(payment.GatewayCallbackRequest{
			IntentID: "pi_1",
		})

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should return not found for an unknown intent", func() {
		rec := postCallback(payment.GatewayCallbackRequest{
			EventType: payment.CallbackEventIntentSucceeded,
			IntentID:  "pi_unknown",
		})

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should reject a malformed body", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.HandlePaymentCallback(rec, req)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("RetrySweeper", func() {
	var (
		gw      *mockGateway
		repo    *mockPaymentRepository
		rentals *mockRentalRepository
		sweeper *payment.RetrySweeper
		ctx     context.Context
	)

	seedRetryScheduled := func(intentID string, retryCount int) {
		past := time.Now().Add(-time.Minute)
		Expect(repo.Create(&paymentDatamodel.Payment{
			GatewayIntentID: intentID,
			UserID:          "usr_renter",
			RentalID:        "temp_1",
			Amount:          1000.00,
			Currency:        "USD",
			Status:          paymentDatamodel.StatusRetryScheduled,
			RetryCount:      retryCount,
			NextRetryAt:     &past,
		})).To(Succeed())
	}

	BeforeEach(func() {
		gw = newMockGateway()
		repo = newMockPaymentRepository()
		rentals = newMockRentalRepository()
		notifs := newMockNotificationRepository()
		ctx = context.Background()
		testLog := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		transitions := payment.NewStateTransitionEngine(repo, rentals, testLog)
		retry := payment.NewRetryCoordinator(2, time.Millisecond, testLog)
		notifier := payment.NewNotificationEmitter(notifs, testLog)
		svc := payment.NewService(gw, repo, rentals, transitions, retry, notifier, nil, testLog)

		sweeper = payment.NewRetrySweeper(repo, svc, gw, time.Minute, 20, 3, testLog)
	})

	It("should complete a due payment whose intent succeeded", func() {
		seedRetryScheduled("pi_1", 1)
		gw.intents["pi_1"] = &gatewaytypes.Intent{ID: "pi_1", Status: gatewaytypes.IntentStatusSucceeded}

		sweeper.Sweep(ctx)

		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusCompleted))
	})

	It("should fail a due payment whose intent was canceled", func() {
		seedRetryScheduled("pi_1", 1)
		gw.intents["pi_1"] = &gatewaytypes.Intent{ID: "pi_1", Status: gatewaytypes.IntentStatusCanceled}

		sweeper.Sweep(ctx)

		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusFailed))
	})

	It("should reschedule an unresolved payment with budget remaining", func() {
		seedRetryScheduled("pi_1", 1)
		gw.intents["pi_1"] = &gatewaytypes.Intent{ID: "pi_1", Status: gatewaytypes.IntentStatusProcessing}

		sweeper.Sweep(ctx)

		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusRetryScheduled))
		Expect(updated.RetryCount).To(Equal(2))
		Expect(updated.NextRetryAt.After(time.Now())).To(BeTrue())
	})

	It("should fail an unresolved payment once the budget is exhausted", func() {
		seedRetryScheduled("pi_1", 3)
		gw.intents["pi_1"] = &gatewaytypes.Intent{ID: "pi_1", Status: gatewaytypes.IntentStatusProcessing}

		sweeper.Sweep(ctx)

		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusFailed))
	})

	It("should leave payments alone before their retry time", func() {
		future := time.Now().Add(time.Hour)
		Expect(repo.Create(&paymentDatamodel.Payment{
			GatewayIntentID: "pi_1",
			UserID:          "usr_renter",
			RentalID:        "temp_1",
			Amount:          1000.00,
			Currency:        "USD",
			Status:          paymentDatamodel.StatusRetryScheduled,
			RetryCount:      1,
			NextRetryAt:     &future,
		})).To(Succeed())

		sweeper.Sweep(ctx)

		updated, _ := repo.GetByIntentID("pi_1")
		Expect(updated.Status).To(Equal(paymentDatamodel.StatusRetryScheduled))
		Expect(updated.RetryCount).To(Equal(1))
	})
})
