package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"smarttrain/internal/status"
	"smarttrain/internal/store"
	"smarttrain/models"
)

const (
	MaxTicketsPerListing = 50
	MaxTripMinutes       = 7 * 24 * 60
	DefaultBrowseLimit   = 50
	MaxBrowseLimit       = 200
)

// MaxTicketPrice caps a single listing's price.
var MaxTicketPrice = decimal.NewFromInt(1_000_000)

// Location is the caller's position as reported by the client.
type Location struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Check is the GPS gate in front of listing. Both coordinates must be present
// and in range; 0,0 is what clients send when location access is denied.
func (l Location) Check() error {
	if l.Lat == nil || l.Lng == nil || (*l.Lat == 0 && *l.Lng == 0) {
		return status.ErrLocationRequired
	}
	if *l.Lat < -90 || *l.Lat > 90 || *l.Lng < -180 || *l.Lng > 180 {
		return status.Validation("Coordinates are out of range")
	}
	return nil
}

type CreateTicketRequest struct {
	From            string          `json:"from"`
	To              string          `json:"to"`
	Price           decimal.Decimal `json:"price"`
	Type            string          `json:"type"`
	ImageURL        string          `json:"imageUrl"`
	Count           int             `json:"count"`
	TripStart       time.Time       `json:"tripStart"`
	DurationMinutes int             `json:"durationMinutes"`
	Location
}

func (r CreateTicketRequest) validate(now time.Time) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.To, validation.Required, validation.Length(1, 100),
			validation.By(func(any) error {
				if strings.EqualFold(r.From, r.To) {
					return errors.New("must differ from the departure station")
				}
				return nil
			})),
		validation.Field(&r.Price, validation.By(func(any) error {
			if !r.Price.IsPositive() {
				return errors.New("must be greater than zero")
			}
			if r.Price.GreaterThan(MaxTicketPrice) {
				return fmt.Errorf("must be no more than %s", MaxTicketPrice)
			}
			if !r.Price.Equal(r.Price.Round(2)) {
				return errors.New("must have at most two decimal places")
			}
			return nil
		})),
		validation.Field(&r.Type, validation.Length(0, 50)),
		validation.Field(&r.ImageURL, validation.Required.Error("Ticket image required"), is.URL),
		validation.Field(&r.Count, validation.Min(1), validation.Max(MaxTicketsPerListing)),
		validation.Field(&r.TripStart, validation.Required, validation.By(func(any) error {
			if !r.TripStart.After(now) {
				return errors.New("must be in the future")
			}
			return nil
		})),
		validation.Field(&r.DurationMinutes, validation.Required, validation.Min(1), validation.Max(MaxTripMinutes)),
	)
}

// MyTickets is the caller's trading history.
type MyTickets struct {
	Selling []*models.Ticket `json:"selling"`
	Bought  []*models.Ticket `json:"bought"`
}

type TicketService struct {
	store  *store.Store
	clock  Clock
	logger *slog.Logger
}

func NewTicketService(s *store.Store, clock Clock, logger *slog.Logger) *TicketService {
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketService{store: s, clock: clock, logger: logger}
}

// CreateListing inserts Count identical available tickets for sellerID and
// returns their ids. A zero Count lists a single ticket.
func (s *TicketService) CreateListing(ctx context.Context, sellerID string, req CreateTicketRequest) ([]string, error) {
	if err := req.Location.Check(); err != nil {
		return nil, err
	}

	req.From = strings.TrimSpace(req.From)
	req.To = strings.TrimSpace(req.To)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.Count == 0 {
		req.Count = 1
	}

	now := s.clock.Now()
	if err := invalid(req.validate(now)); err != nil {
		return nil, err
	}

	ids := make([]string, req.Count)
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	nt := models.NewTicket{
		SellerID:            sellerID,
		FromStation:         req.From,
		ToStation:           req.To,
		Price:               req.Price,
		Type:                strings.TrimSpace(req.Type),
		ImageURL:            req.ImageURL,
		TripStart:           req.TripStart.UTC(),
		TripDurationMinutes: req.DurationMinutes,
		Latitude:            *req.Lat,
		Longitude:           *req.Lng,
		Count:               req.Count,
	}

	err := s.store.InTx(ctx, func(tx *store.Store) error {
		return tx.Tickets.Insert(ctx, ids, nt, now)
	})
	if err != nil {
		s.logger.Error("Failed to create listing", "error", err, "seller_id", sellerID, "count", req.Count)
		return nil, err
	}

	s.logger.Info("Tickets listed", "seller_id", sellerID, "count", req.Count, "from", nt.FromStation, "to", nt.ToStation)
	return ids, nil
}

// Browse lists tickets still for sale on trips that have not departed.
func (s *TicketService) Browse(ctx context.Context, from, to string, limit int) ([]*models.Ticket, error) {
	switch {
	case limit <= 0:
		limit = DefaultBrowseLimit
	case limit > MaxBrowseLimit:
		limit = MaxBrowseLimit
	}
	return s.store.Tickets.ListAvailable(ctx, from, to, s.clock.Now(), limit)
}

func (s *TicketService) Mine(ctx context.Context, userID string) (*MyTickets, error) {
	selling, err := s.store.Tickets.ListBySeller(ctx, userID)
	if err != nil {
		return nil, err
	}
	bought, err := s.store.Tickets.ListByBuyer(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MyTickets{Selling: selling, Bought: bought}, nil
}

func (s *TicketService) Get(ctx context.Context, ticketID string) (*models.Ticket, error) {
	if ticketID == "" {
		return nil, status.Validation("ticket id is required")
	}
	return s.store.Tickets.Get(ctx, ticketID)
}

// TripProgress reports the progress of the ticket's trip at the current time.
func (s *TicketService) TripProgress(ctx context.Context, ticketID string) (models.TripProgress, error) {
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return models.TripProgress{}, fmt.Errorf("trip progress: %w", err)
	}
	return ComputeProgress(t, s.clock.Now()), nil
}
