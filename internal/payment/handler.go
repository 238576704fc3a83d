package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/gearshare/rental-payments/internal"
	"github.com/gearshare/rental-payments/internal/transport"
	"github.com/gearshare/rental-payments/pkg/logger"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Refunds *RefundEngine
	Payouts *PayoutEngine
}

func NewHandler(service ServiceAPI, refunds *RefundEngine, payouts *PayoutEngine) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
		Refunds:     refunds,
		Payouts:     payouts,
	}
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID := apperrors.UserIDFromContext(r.Context())
	if userID == "" {
		h.Logger.Error("CreatePaymentIntent: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreatePaymentIntent: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if dto.Metadata == nil {
		dto.Metadata = IntentMetadata{}
	}
	dto.Metadata[MetaUserID] = userID

	intent, record, err := h.Service.CreatePaymentIntent(r.Context(), &dto)
	if err != nil {
		h.Logger.Error("CreatePaymentIntent: service error", "error", err, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreatePaymentIntent: intent created",
		"intent_id", intent.ID,
		"user_id", userID,
		"amount", record.Amount,
		"currency", record.Currency)

	h.WriteJSON(w, http.StatusCreated, CreateIntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       record.Amount,
		Currency:     record.Currency,
		Status:       record.Status,
		RentalID:     record.RentalID,
	})
}

func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var dto RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RefundPayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Refunds.RefundPayment(r.Context(), dto.IntentID, dto.Amount); err != nil {
		h.Logger.Error("RefundPayment: service error", "error", err, "intent_id", dto.IntentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

func (h *Handler) RefundSecurityDeposit(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		h.WriteError(w, http.StatusBadRequest, "intent ID is required")
		return
	}

	var amount *float64
	if r.Body != nil && r.ContentLength != 0 {
		var dto DepositRefundRequest
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error("RefundSecurityDeposit: invalid request body", "error", err)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		amount = dto.Amount
	}

	if err := h.Refunds.RefundSecurityDeposit(r.Context(), intentID, amount); err != nil {
		h.Logger.Error("RefundSecurityDeposit: service error", "error", err, "intent_id", intentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "deposit_refunded"})
}

func (h *Handler) BlockPayment(w http.ResponseWriter, r *http.Request) {
	var dto BlockPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("BlockPayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.BlockPayment(r.Context(), dto.IntentID, dto.Reason); err != nil {
		h.Logger.Error("BlockPayment: service error", "error", err, "intent_id", dto.IntentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

func (h *Handler) ScheduleRetry(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		h.WriteError(w, http.StatusBadRequest, "intent ID is required")
		return
	}

	if err := h.Service.ScheduleRetry(r.Context(), intentID); err != nil {
		h.Logger.Error("ScheduleRetry: service error", "error", err, "intent_id", intentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "retry_scheduled"})
}

func (h *Handler) AttachRental(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		h.WriteError(w, http.StatusBadRequest, "intent ID is required")
		return
	}

	var dto AttachRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("AttachRental: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.AttachRental(r.Context(), intentID, dto.RentalID); err != nil {
		h.Logger.Error("AttachRental: service error", "error", err,
			"intent_id", intentID, "rental_id", dto.RentalID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

func (h *Handler) CreateConnectAccount(w http.ResponseWriter, r *http.Request) {
	userID := apperrors.UserIDFromContext(r.Context())
	if userID == "" {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateConnectAccount: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dto.UserID = userID

	account, isNew, err := h.Payouts.CreateConnectAccount(r.Context(), &dto)
	if err != nil {
		h.Logger.Error("CreateConnectAccount: service error", "error", err, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	h.WriteJSON(w, status, CreateAccountResponse{AccountID: account.ID, IsNew: isNew})
}

func (h *Handler) CreateAccountLink(w http.ResponseWriter, r *http.Request) {
	var dto AccountLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateAccountLink: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	link, err := h.Payouts.CreateAccountLink(r.Context(), &dto)
	if err != nil {
		h.Logger.Error("CreateAccountLink: service error", "error", err, "account_id", dto.AccountID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, link)
}

func (h *Handler) ProcessOwnerPayout(w http.ResponseWriter, r *http.Request) {
	rentalID := chi.URLParam(r, "rentalID")
	if rentalID == "" {
		h.WriteError(w, http.StatusBadRequest, "rental ID is required")
		return
	}

	resp, err := h.Payouts.ProcessOwnerPayout(r.Context(), rentalID)
	if err != nil {
		h.Logger.Error("ProcessOwnerPayout: service error", "error", err, "rental_id", rentalID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("ProcessOwnerPayout: payout processed",
		"rental_id", rentalID,
		"transfer_id", resp.TransferID,
		"payout_amount", resp.PayoutAmount)

	h.WriteJSON(w, http.StatusOK, resp)
}
