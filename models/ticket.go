package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "available"
	TicketSold      TicketStatus = "sold"
)

type Ticket struct {
	ID                  string          `json:"id"`
	SellerID            string          `json:"seller_id"`
	BuyerID             *string         `json:"buyer_id"`
	FromStation         string          `json:"from"`
	ToStation           string          `json:"to"`
	Price               decimal.Decimal `json:"price"`
	Type                string          `json:"type"`
	ImageURL            string          `json:"image_url"`
	TripStart           time.Time       `json:"trip_start"`
	TripDurationMinutes int             `json:"trip_duration_minutes"`
	Status              TicketStatus    `json:"status"`
	PaymentReleased     bool            `json:"payment_released"`
	EscrowAmount        decimal.Decimal `json:"escrow_amount"`
	Latitude            float64         `json:"lat"`
	Longitude           float64         `json:"lng"`
	CreatedAt           time.Time       `json:"created_at"`
	SoldAt              *time.Time      `json:"sold_at,omitempty"`
	ReleasedAt          *time.Time      `json:"released_at,omitempty"`
	// PaymentID is the checkout session that paid for the ticket, nil for
	// direct purchases.
	PaymentID *string `json:"payment_id,omitempty"`
}

// TripDuration is the scheduled duration of the trip.
func (t *Ticket) TripDuration() time.Duration {
	return time.Duration(t.TripDurationMinutes) * time.Minute
}

// ReleaseAt is the instant the escrowed funds for t become releasable:
// half of the scheduled trip duration after departure.
func (t *Ticket) ReleaseAt() time.Time {
	return t.TripStart.Add(t.TripDuration() / 2)
}

// NewTicket describes one listing request; Count identical tickets are created from it.
type NewTicket struct {
	SellerID            string
	FromStation         string
	ToStation           string
	Price               decimal.Decimal
	Type                string
	ImageURL            string
	TripStart           time.Time
	TripDurationMinutes int
	Latitude            float64
	Longitude           float64
	Count               int
}

// PurchaseReceipt is returned to the buyer after a successful purchase.
type PurchaseReceipt struct {
	TicketID string `json:"ticket_id"`
	BuyerID  string `json:"buyer_id"`
	Message  string `json:"message"`
}

// PurchaseFinalNotice is shown on every receipt; purchases cannot be undone.
const PurchaseFinalNotice = "Purchase completed. No cancellation or refund allowed."
