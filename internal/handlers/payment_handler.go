package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"smarttrain/internal/status"
	"smarttrain/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 20

type PaymentService interface {
	Checkout(ctx context.Context, ticketID, buyerID string) (*models.PaymentSession, error)
	GetSession(ctx context.Context, sessionID, userID string) (*models.PaymentSession, error)
	HandleNotification(ctx context.Context, body []byte, signature string) (*models.PaymentSession, error)
}

type PaymentHandler struct {
	payments PaymentService
}

func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Checkout - POST /api/tickets/{id}/checkout
func (h *PaymentHandler) Checkout(e *core.RequestEvent) error {
	buyerID, err := callerID(e)
	if err != nil {
		return respondError(e, err)
	}

	session, err := h.payments.Checkout(e.Request.Context(), e.Request.PathValue("id"), buyerID)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, session)
}

// GetPaymentStatus - GET /api/payments/{sessionId}
func (h *PaymentHandler) GetPaymentStatus(e *core.RequestEvent) error {
	userID, err := callerID(e)
	if err != nil {
		return respondError(e, err)
	}

	session, err := h.payments.GetSession(e.Request.Context(), e.Request.PathValue("sessionId"), userID)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, session)
}

// Webhook - POST /api/payments/webhook
//
// The signature covers the raw body, so it is read before any decoding.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return respondError(e, status.Validation("Unreadable body"))
	}

	session, err := h.payments.HandleNotification(e.Request.Context(), body, e.Request.Header.Get(SignatureHeader))
	if err != nil {
		slog.Warn("Payment webhook rejected", "error", err, "remote_ip", e.RemoteIP())
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"payment_id": session.ID,
		"status":     session.Status,
	})
}
