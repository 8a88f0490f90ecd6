package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sanctuary/internal/apperr"
	"sanctuary/internal/auth"
	mw "sanctuary/internal/middleware"
	"sanctuary/internal/payments"
)

type PaymentsHandler struct {
	checkout *payments.Orchestrator
	logger   *zap.Logger
}

func NewPaymentsHandler(checkout *payments.Orchestrator, logger *zap.Logger) *PaymentsHandler {
	return &PaymentsHandler{checkout: checkout, logger: logger}
}

// checkoutRequest accepts either a bare JSON array of product ids or an
// object with a product_ids field.
type checkoutRequest struct {
	ProductIDs []string `json:"product_ids"`
}

func (c *checkoutRequest) UnmarshalJSON(b []byte) error {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &c.ProductIDs)
	}
	type plain checkoutRequest
	return json.Unmarshal(b, (*plain)(c))
}

// CreateSession godoc
// @Summary Start a hosted checkout
// @Tags payments
// @Accept json
// @Produce json
// @Param product_ids body []string true "Product ids"
// @Success 200 {object} map[string]string "url"
// @Failure 404 {object} mw.ErrorResponse "No products found"
// @Failure 500 {object} mw.ErrorResponse "Unable to create checkout session"
// @Failure 503 {object} mw.ErrorResponse "Payment processing not configured"
// @Router /payments/checkout/session [post]
func (h *PaymentsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(h.logger, w, r, apperr.Validation("invalid body").Wrap(err))
		return
	}

	buyer, _ := auth.UserFromContext(r.Context())
	url, err := h.checkout.CreateSession(r.Context(), req.ProductIDs, buyer)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	mw.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

// GetStatus godoc
// @Summary Poll a checkout session
// @Tags payments
// @Produce json
// @Param sessionID path string true "Provider session id"
// @Success 200 {object} payments.Status
// @Failure 404 {object} mw.ErrorResponse "Session not found"
// @Router /payments/checkout/status/{sessionID} [get]
func (h *PaymentsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.checkout.GetStatus(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	mw.WriteJSON(w, http.StatusOK, status)
}

// Webhook godoc
// @Summary Receive a signed payment provider event
// @Tags payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Provider signature"
// @Success 200 {object} map[string]string "status"
// @Failure 400 {object} mw.ErrorResponse "Invalid signature or payload"
// @Router /payments/webhook [post]
func (h *PaymentsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		fail(h.logger, w, r, payments.ErrInvalidPayload.Wrap(err))
		return
	}
	if err := h.checkout.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	mw.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
