package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// HoldKeyPattern matches every checkout hold key.
const HoldKeyPattern = "hold:ticket:*"

// releaseHold deletes the hold only when it still belongs to the caller.
var releaseHold = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TicketHold is the checkout a ticket is reserved for.
type TicketHold struct {
	BuyerID   string
	PaymentID string
}

func (h TicketHold) value() string {
	return h.BuyerID + "|" + h.PaymentID
}

func parseHold(v string) TicketHold {
	buyer, payment, _ := strings.Cut(v, "|")
	return TicketHold{BuyerID: buyer, PaymentID: payment}
}

// HoldService reserves a ticket for one checkout while its payment session is
// open so that nobody is charged twice for the same ticket. Holds expire on
// their own; the database sale remains the source of truth.
type HoldService struct {
	redis redis.Cmdable
}

func NewHoldService(client redis.Cmdable) *HoldService {
	return &HoldService{redis: client}
}

func holdKey(ticketID string) string {
	return fmt.Sprintf("hold:ticket:%s", ticketID)
}

// Hold reserves ticketID for h until ttl elapses. When the ticket is already
// held, the existing hold is returned with false and left untouched, even if
// it belongs to the same buyer.
func (s *HoldService) Hold(ctx context.Context, ticketID string, h TicketHold, ttl time.Duration) (TicketHold, bool, error) {
	ok, err := s.redis.SetNX(ctx, holdKey(ticketID), h.value(), ttl).Result()
	if err != nil {
		return TicketHold{}, false, fmt.Errorf("hold ticket %s: %w", ticketID, err)
	}
	if ok {
		return h, true, nil
	}

	current, err := s.Current(ctx, ticketID)
	if err != nil {
		return TicketHold{}, false, err
	}
	return current, false, nil
}

// Current returns the hold on ticketID, or the zero TicketHold when it is not
// held.
func (s *HoldService) Current(ctx context.Context, ticketID string) (TicketHold, error) {
	v, err := s.redis.Get(ctx, holdKey(ticketID)).Result()
	if errors.Is(err, redis.Nil) {
		return TicketHold{}, nil
	}
	if err != nil {
		return TicketHold{}, fmt.Errorf("read hold on ticket %s: %w", ticketID, err)
	}
	return parseHold(v), nil
}

// Release drops h's hold on ticketID. A hold taken by another checkout is
// left alone.
func (s *HoldService) Release(ctx context.Context, ticketID string, h TicketHold) {
	if err := releaseHold.Run(ctx, s.redis, []string{holdKey(ticketID)}, h.value()).Err(); err != nil {
		slog.Warn("Failed to release ticket hold", "error", err, "ticket_id", ticketID, "buyer_id", h.BuyerID, "payment_id", h.PaymentID)
	}
}
