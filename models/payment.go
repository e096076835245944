package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	// PaymentConflict marks a confirmed payment whose ticket was already sold.
	PaymentConflict PaymentStatus = "conflict"
)

// PaymentSession tracks one checkout with the external payment provider.
type PaymentSession struct {
	ID          string          `json:"payment_id"`
	TicketID    string          `json:"ticket_id"`
	BuyerID     string          `json:"buyer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      PaymentStatus   `json:"status"`
	RedirectURL string          `json:"redirect_url"`
	ProviderRef string          `json:"provider_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// PaymentNotification is the body the provider posts to the webhook.
type PaymentNotification struct {
	PaymentID     string          `json:"payment_id"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
}
