package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gearshare/rental-payments/internal/payment"
	"github.com/gearshare/rental-payments/internal/transport/middleware"
	"github.com/gearshare/rental-payments/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/redis/go-redis/v9"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, redisClient *redis.Client, jwtSecret string, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, redisClient)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway callback ingress, authenticated by the gateway itself
		if webhookHandler != nil {
			r.Post("/payments/callback", webhookHandler.HandlePaymentCallback)
		}

		if paymentHandler != nil {
			// Money-moving routes require an authenticated user
			r.Group(func(pr chi.Router) {
				pr.Use(middleware.JWTAuth(jwtSecret, logger))

				pr.Route("/payments", func(pmr chi.Router) {
					pmr.Post("/intent", paymentHandler.CreatePaymentIntent)
					pmr.Post("/refund", paymentHandler.RefundPayment)
					pmr.Post("/block", paymentHandler.BlockPayment)
					pmr.Post("/{intentID}/deposit/refund", paymentHandler.RefundSecurityDeposit)
					pmr.Post("/{intentID}/retry", paymentHandler.ScheduleRetry)
					pmr.Post("/{intentID}/rental", paymentHandler.AttachRental)
				})

				pr.Route("/payouts", func(por chi.Router) {
					por.Post("/accounts", paymentHandler.CreateConnectAccount)
					por.Post("/account-links", paymentHandler.CreateAccountLink)
					por.Post("/rentals/{rentalID}", paymentHandler.ProcessOwnerPayout)
				})
			})
		}
	})
}
