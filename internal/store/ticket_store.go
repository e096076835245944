package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
	"smarttrain/models"
)

type TicketStore struct {
	db dbx.Builder
}

var ticketColumns = []string{
	"id", "seller_id", "buyer_id", "from_station", "to_station", "price", "type", "image_url",
	"trip_start", "trip_duration_minutes", "status", "payment_released", "escrow_amount",
	"latitude", "longitude", "created", "sold_at", "released_at", "payment_id",
}

type ticketRow struct {
	ID                  string         `db:"id"`
	SellerID            string         `db:"seller_id"`
	BuyerID             sql.NullString `db:"buyer_id"`
	FromStation         string         `db:"from_station"`
	ToStation           string         `db:"to_station"`
	Price               int64          `db:"price"`
	Type                string         `db:"type"`
	ImageURL            string         `db:"image_url"`
	TripStart           int64          `db:"trip_start"`
	TripDurationMinutes int            `db:"trip_duration_minutes"`
	Status              string         `db:"status"`
	PaymentReleased     bool           `db:"payment_released"`
	EscrowAmount        int64          `db:"escrow_amount"`
	Latitude            float64        `db:"latitude"`
	Longitude           float64        `db:"longitude"`
	Created             int64          `db:"created"`
	SoldAt              sql.NullInt64  `db:"sold_at"`
	ReleasedAt          sql.NullInt64  `db:"released_at"`
	PaymentID           sql.NullString `db:"payment_id"`
}

func (r *ticketRow) toModel() *models.Ticket {
	t := &models.Ticket{
		ID:                  r.ID,
		SellerID:            r.SellerID,
		FromStation:         r.FromStation,
		ToStation:           r.ToStation,
		Price:               models.FromMinor(r.Price),
		Type:                r.Type,
		ImageURL:            r.ImageURL,
		TripStart:           time.UnixMilli(r.TripStart).UTC(),
		TripDurationMinutes: r.TripDurationMinutes,
		Status:              models.TicketStatus(r.Status),
		PaymentReleased:     r.PaymentReleased,
		EscrowAmount:        models.FromMinor(r.EscrowAmount),
		Latitude:            r.Latitude,
		Longitude:           r.Longitude,
		CreatedAt:           time.UnixMilli(r.Created).UTC(),
	}
	if r.BuyerID.Valid {
		buyer := r.BuyerID.String
		t.BuyerID = &buyer
	}
	if r.PaymentID.Valid {
		payment := r.PaymentID.String
		t.PaymentID = &payment
	}
	if r.SoldAt.Valid {
		at := time.UnixMilli(r.SoldAt.Int64).UTC()
		t.SoldAt = &at
	}
	if r.ReleasedAt.Valid {
		at := time.UnixMilli(r.ReleasedAt.Int64).UTC()
		t.ReleasedAt = &at
	}
	return t
}

func toModels(rows []ticketRow) []*models.Ticket {
	tickets := make([]*models.Ticket, 0, len(rows))
	for i := range rows {
		tickets = append(tickets, rows[i].toModel())
	}
	return tickets
}

// Insert stores one available ticket per id. Identical listings are not deduplicated.
func (s *TicketStore) Insert(ctx context.Context, ids []string, nt models.NewTicket, at time.Time) error {
	price, err := minorUnits("tickets: insert", nt.Price)
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, err := s.db.Insert("tickets", dbx.Params{
			"id":                    id,
			"seller_id":             nt.SellerID,
			"from_station":          nt.FromStation,
			"to_station":            nt.ToStation,
			"price":                 price,
			"type":                  nt.Type,
			"image_url":             nt.ImageURL,
			"trip_start":            nt.TripStart.UnixMilli(),
			"trip_duration_minutes": nt.TripDurationMinutes,
			"status":                string(models.TicketAvailable),
			"payment_released":      false,
			"escrow_amount":         0,
			"latitude":              nt.Latitude,
			"longitude":             nt.Longitude,
			"created":               at.UnixMilli(),
		}).WithContext(ctx).Execute()
		if err != nil {
			return storageErr("tickets: insert", err)
		}
	}
	return nil
}

func (s *TicketStore) Get(ctx context.Context, id string) (*models.Ticket, error) {
	var row ticketRow
	err := s.db.Select(ticketColumns...).
		From("tickets").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, notFound("tickets: get", err)
	}
	return row.toModel(), nil
}

// MarkSold flips an available ticket to sold for buyerID. It reports false,
// without error, when the ticket is not available any more, does not exist,
// or belongs to buyerID.
func (s *TicketStore) MarkSold(ctx context.Context, id, buyerID string, at time.Time) (bool, error) {
	res, err := s.db.NewQuery(`
		UPDATE tickets
		SET status = 'sold', buyer_id = {:buyer}, sold_at = {:at}
		WHERE id = {:id} AND status = 'available' AND seller_id <> {:buyer}`).
		Bind(dbx.Params{"id": id, "buyer": buyerID, "at": at.UnixMilli()}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, storageErr("tickets: mark sold", err)
	}
	return rowsAffected(res) == 1, nil
}

// SetEscrow records the net amount credited to the seller for a sold ticket.
func (s *TicketStore) SetEscrow(ctx context.Context, id string, amount decimal.Decimal) error {
	minor, err := minorUnits("tickets: set escrow", amount)
	if err != nil {
		return err
	}
	_, err = s.db.Update("tickets",
		dbx.Params{"escrow_amount": minor},
		dbx.HashExp{"id": id},
	).WithContext(ctx).Execute()
	if err != nil {
		return storageErr("tickets: set escrow", err)
	}
	return nil
}

// SetPayment records the payment session that paid for a sold ticket.
func (s *TicketStore) SetPayment(ctx context.Context, id, paymentID string) error {
	_, err := s.db.Update("tickets",
		dbx.Params{"payment_id": paymentID},
		dbx.HashExp{"id": id},
	).WithContext(ctx).Execute()
	if err != nil {
		return storageErr("tickets: set payment", err)
	}
	return nil
}

// MarkReleased sets payment_released on a sold ticket. It reports false when
// the flag was already set, which makes concurrent releases a no-op.
func (s *TicketStore) MarkReleased(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.NewQuery(`
		UPDATE tickets
		SET payment_released = TRUE, released_at = {:at}
		WHERE id = {:id} AND status = 'sold' AND payment_released = FALSE`).
		Bind(dbx.Params{"id": id, "at": at.UnixMilli()}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, storageErr("tickets: mark released", err)
	}
	return rowsAffected(res) == 1, nil
}

// ListPendingRelease returns sold tickets whose escrow has not been released.
func (s *TicketStore) ListPendingRelease(ctx context.Context) ([]*models.Ticket, error) {
	var rows []ticketRow
	err := s.db.Select(ticketColumns...).
		From("tickets").
		Where(dbx.NewExp("status = 'sold' AND payment_released = FALSE")).
		OrderBy("trip_start ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, storageErr("tickets: list pending release", err)
	}
	return toModels(rows), nil
}

// ListAvailable returns unsold tickets departing after `after`, optionally
// filtered by station (case-insensitive).
func (s *TicketStore) ListAvailable(ctx context.Context, from, to string, after time.Time, limit int) ([]*models.Ticket, error) {
	q := s.db.Select(ticketColumns...).
		From("tickets").
		Where(dbx.HashExp{"status": string(models.TicketAvailable)}).
		AndWhere(dbx.NewExp("trip_start > {:after}", dbx.Params{"after": after.UnixMilli()}))
	if from = strings.TrimSpace(from); from != "" {
		q = q.AndWhere(dbx.NewExp("LOWER(from_station) = {:from}", dbx.Params{"from": strings.ToLower(from)}))
	}
	if to = strings.TrimSpace(to); to != "" {
		q = q.AndWhere(dbx.NewExp("LOWER(to_station) = {:to}", dbx.Params{"to": strings.ToLower(to)}))
	}

	var rows []ticketRow
	err := q.OrderBy("trip_start ASC", "id ASC").Limit(int64(limit)).WithContext(ctx).All(&rows)
	if err != nil {
		return nil, storageErr("tickets: list available", err)
	}
	return toModels(rows), nil
}

func (s *TicketStore) ListBySeller(ctx context.Context, sellerID string) ([]*models.Ticket, error) {
	return s.listBy(ctx, "seller_id", sellerID)
}

func (s *TicketStore) ListByBuyer(ctx context.Context, buyerID string) ([]*models.Ticket, error) {
	return s.listBy(ctx, "buyer_id", buyerID)
}

func (s *TicketStore) listBy(ctx context.Context, column, userID string) ([]*models.Ticket, error) {
	var rows []ticketRow
	err := s.db.Select(ticketColumns...).
		From("tickets").
		Where(dbx.HashExp{column: userID}).
		OrderBy("trip_start DESC", "id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, storageErr("tickets: list by "+column, err)
	}
	return toModels(rows), nil
}
