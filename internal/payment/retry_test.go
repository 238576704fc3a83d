package payment_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	gatewaytypes "github.com/gearshare/rental-payments/internal/core/datamodel/gateway"
	"github.com/gearshare/rental-payments/internal/payment"
)

var _ = Describe("RetryCoordinator", func() {
	var (
		coordinator *payment.RetryCoordinator
		ctx         context.Context
	)

	BeforeEach(func() {
		testLog := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		coordinator = payment.NewRetryCoordinator(3, time.Millisecond, testLog)
		ctx = context.Background()
	})

	It("should return immediately on success", func() {
		calls := 0
		err := coordinator.WithRetry(ctx, "op", func() error {
			calls++
			return nil
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("should retry transient failures until they succeed", func() {
		calls := 0
		err := coordinator.WithRetry(ctx, "op", func() error {
			calls++
			if calls < 3 {
				return &gatewaytypes.Error{StatusCode: 503, Code: "unavailable", Message: "try later", Transient: true}
			}
			return nil
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(calls).To(Equal(3))
	})

	It("should not retry permanent failures", func() {
		permanent := &gatewaytypes.Error{StatusCode: 402, Code: "card_declined", Message: "declined"}
		calls := 0
		err := coordinator.WithRetry(ctx, "op", func() error {
			calls++
			return permanent
		})

		Expect(err).To(MatchError(permanent))
		Expect(calls).To(Equal(1))
	})

	It("should not retry plain errors", func() {
		plain := errors.New("boom")
		calls := 0
		err := coordinator.WithRetry(ctx, "op", func() error {
			calls++
			return plain
		})

		Expect(err).To(MatchError(plain))
		Expect(calls).To(Equal(1))
	})

	It("should give up after exhausting retries and return the last error", func() {
		transient := &gatewaytypes.Error{StatusCode: 500, Code: "internal", Message: "oops", Transient: true}
		calls := 0
		err := coordinator.WithRetry(ctx, "op", func() error {
			calls++
			return transient
		})

		Expect(err).To(MatchError(transient))
		Expect(calls).To(Equal(4))
	})

	It("should stop when the context is cancelled", func() {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		err := coordinator.WithRetry(cancelCtx, "op", func() error {
			return &gatewaytypes.Error{StatusCode: 503, Code: "unavailable", Message: "try later", Transient: true}
		})

		Expect(err).To(MatchError(context.Canceled))
	})
})
