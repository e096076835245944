package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"smarttrain/internal/status"
	"smarttrain/internal/store"
	"smarttrain/models"
	"smarttrain/monitoring"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// SweepResult summarises one ReleaseSweep.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	// Skipped counts tickets not yet eligible or already released elsewhere.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// EscrowService moves seller proceeds into escrow at purchase and out of it
// once half of the trip has elapsed.
type EscrowService struct {
	store    *store.Store
	fee      decimal.Decimal
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
}

func NewEscrowService(s *store.Store, platformFee decimal.Decimal, notifier Notifier, clock Clock, logger *slog.Logger) *EscrowService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EscrowService{store: s, fee: platformFee, notifier: notifier, clock: clock, logger: logger}
}

// NetProceeds is what the seller is credited for a sale: price minus the flat
// platform fee, floored at zero.
func NetProceeds(price, fee decimal.Decimal) decimal.Decimal {
	net := price.Sub(fee)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

// PurchaseTicket sells an available ticket to buyerID. The status flip, the
// escrow bookkeeping and the seller's locked balance change commit together.
// A ticket that is sold, unknown, or lost to a concurrent buyer yields
// status.ErrTicketUnavailable.
func (s *EscrowService) PurchaseTicket(ctx context.Context, ticketID, buyerID string) (*models.PurchaseReceipt, error) {
	return s.purchase(ctx, ticketID, buyerID, "")
}

// PurchasePaid is PurchaseTicket for a confirmed checkout. paymentID is stored
// with the sale so that the paying session can be told apart from any other.
func (s *EscrowService) PurchasePaid(ctx context.Context, ticketID, buyerID, paymentID string) (*models.PurchaseReceipt, error) {
	if paymentID == "" {
		return nil, status.Validation("payment id is required")
	}
	return s.purchase(ctx, ticketID, buyerID, paymentID)
}

func (s *EscrowService) purchase(ctx context.Context, ticketID, buyerID, paymentID string) (*models.PurchaseReceipt, error) {
	if ticketID == "" || buyerID == "" {
		return nil, status.Validation("ticket id and buyer id are required")
	}

	now := s.clock.Now()
	var sold *models.Ticket

	err := s.store.InTx(ctx, func(tx *store.Store) error {
		ok, err := tx.Tickets.MarkSold(ctx, ticketID, buyerID, now)
		if err != nil {
			return err
		}
		if !ok {
			return unavailable(ctx, tx, ticketID, buyerID)
		}

		if paymentID != "" {
			if err := tx.Tickets.SetPayment(ctx, ticketID, paymentID); err != nil {
				return err
			}
		}

		t, err := tx.Tickets.Get(ctx, ticketID)
		if err != nil {
			return err
		}

		net := NetProceeds(t.Price, s.fee)
		if err := tx.Tickets.SetEscrow(ctx, ticketID, net); err != nil {
			return err
		}
		if err := tx.Wallets.Lock(ctx, t.SellerID, net, now); err != nil {
			return fmt.Errorf("lock proceeds for seller %s: %w", t.SellerID, err)
		}

		t.EscrowAmount = net
		sold = t
		return nil
	})
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, status.ErrTicketUnavailable):
			outcome = "unavailable"
		case errors.Is(err, status.ErrValidation):
			outcome = "rejected"
		default:
			s.logger.Error("Failed to purchase ticket", "error", err, "ticket_id", ticketID, "buyer_id", buyerID)
		}
		monitoring.TrackPurchase(outcome)
		return nil, err
	}

	monitoring.TrackPurchase("success")
	s.logger.Info("Ticket sold",
		"ticket_id", sold.ID,
		"seller_id", sold.SellerID,
		"buyer_id", buyerID,
		"escrow", sold.EscrowAmount.String(),
	)

	escrow := sold.EscrowAmount
	s.notifier.Notify(ctx, sold.SellerID, models.Event{
		Type:     models.EventTicketSold,
		TicketID: sold.ID,
		Amount:   &escrow,
		At:       now,
	})
	s.notifier.Notify(ctx, buyerID, models.Event{
		Type:     models.EventPurchaseConfirmed,
		TicketID: sold.ID,
		Message:  models.PurchaseFinalNotice,
		At:       now,
	})

	return &models.PurchaseReceipt{
		TicketID: sold.ID,
		BuyerID:  buyerID,
		Message:  models.PurchaseFinalNotice,
	}, nil
}

// unavailable explains why the conditional sale did not apply.
func unavailable(ctx context.Context, tx *store.Store, ticketID, buyerID string) error {
	t, err := tx.Tickets.Get(ctx, ticketID)
	switch {
	case errors.Is(err, status.ErrNotFound):
		return fmt.Errorf("ticket %s: %w", ticketID, status.ErrTicketUnavailable)
	case err != nil:
		return err
	case t.Status == models.TicketAvailable && t.SellerID == buyerID:
		return status.Validation("you cannot buy your own ticket")
	}
	return fmt.Errorf("ticket %s: %w", ticketID, status.ErrTicketUnavailable)
}

// ReleaseSweep releases the escrow of every sold ticket whose trip has
// reached its halfway point at now. Each ticket is released in its own
// transaction guarded by payment_released, so overlapping sweeps credit a
// seller at most once per ticket. Per-ticket failures are logged and counted;
// only a failure to list candidates is returned.
func (s *EscrowService) ReleaseSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	started := time.Now()
	defer func() { monitoring.ObserveSweep(time.Since(started)) }()

	pending, err := s.store.Tickets.ListPendingRelease(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("release sweep: %w", err)
	}

	res := SweepResult{Scanned: len(pending)}
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if now.Before(t.ReleaseAt()) {
			res.Skipped++
			continue
		}

		released, err := s.release(ctx, t, now)
		switch {
		case err != nil:
			res.Failed++
			monitoring.TrackRelease("failed")
			s.logger.Error("Failed to release escrow",
				"error", err,
				"ticket_id", t.ID,
				"seller_id", t.SellerID,
			)
		case !released:
			res.Skipped++
			monitoring.TrackRelease("already_released")
		default:
			res.Released++
			monitoring.TrackRelease("released")
			amount := t.EscrowAmount
			s.notifier.Notify(ctx, t.SellerID, models.Event{
				Type:     models.EventPaymentReleased,
				TicketID: t.ID,
				Amount:   &amount,
				At:       now,
			})
		}
	}

	if res.Released > 0 || res.Failed > 0 {
		s.logger.Info("Release sweep finished",
			"scanned", res.Scanned,
			"released", res.Released,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (s *EscrowService) release(ctx context.Context, t *models.Ticket, now time.Time) (bool, error) {
	released := false
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		ok, err := tx.Tickets.MarkReleased(ctx, t.ID, now)
		if err != nil || !ok {
			return err
		}
		if err := tx.Wallets.Release(ctx, t.SellerID, t.EscrowAmount, now); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}
