package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventTicketSold        EventType = "ticket_sold"
	EventPurchaseConfirmed EventType = "purchase_confirmed"
	EventPaymentReleased   EventType = "payment_released"
	EventPaymentFailed     EventType = "payment_failed"
)

// Event is pushed to a user's notification channel.
type Event struct {
	Type      EventType        `json:"type"`
	TicketID  string           `json:"ticket_id"`
	PaymentID string           `json:"payment_id,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Message   string           `json:"message,omitempty"`
	At        time.Time        `json:"at"`
}
