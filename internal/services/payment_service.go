package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"smarttrain/internal/services/bank"
	"smarttrain/internal/status"
	"smarttrain/internal/store"
	"smarttrain/models"
	"smarttrain/monitoring"
)

// settledSessionTTL keeps finished sessions around for status lookups.
const settledSessionTTL = 24 * time.Hour

// Purchaser completes a sale; EscrowService implements it.
type Purchaser interface {
	PurchaseTicket(ctx context.Context, ticketID, buyerID string) (*models.PurchaseReceipt, error)
}

// PaidPurchaser completes a sale for a confirmed payment session.
type PaidPurchaser interface {
	PurchasePaid(ctx context.Context, ticketID, buyerID, paymentID string) (*models.PurchaseReceipt, error)
}

type PaymentConfig struct {
	Currency        string
	SessionTimeout  time.Duration
	ProviderTimeout time.Duration
	WebhookSecret   string
}

// PaymentService runs the checkout flow: hold the ticket, open a provider
// session, and complete the sale when the provider confirms the payment.
type PaymentService struct {
	redis    redis.Cmdable
	store    *store.Store
	provider bank.Provider
	escrow   PaidPurchaser
	holds    *HoldService
	notifier Notifier
	cfg      PaymentConfig
	clock    Clock
	newID    func() string
	logger   *slog.Logger
}

func NewPaymentService(
	client redis.Cmdable,
	s *store.Store,
	provider bank.Provider,
	escrow PaidPurchaser,
	holds *HoldService,
	notifier Notifier,
	cfg PaymentConfig,
	logger *slog.Logger,
) *PaymentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		redis:    client,
		store:    s,
		provider: provider,
		escrow:   escrow,
		holds:    holds,
		notifier: notifier,
		cfg:      cfg,
		clock:    SystemClock,
		newID:    func() string { return "pay_" + uuid.NewString() },
		logger:   logger,
	}
}

func paymentKey(id string) string {
	return fmt.Sprintf("payment:%s", id)
}

// Checkout opens a payment session for buyerID on an available ticket. The
// ticket stays available in the database until the payment is confirmed.
// While the buyer's session is still open, checking out again returns it
// instead of opening a second one.
func (s *PaymentService) Checkout(ctx context.Context, ticketID, buyerID string) (*models.PaymentSession, error) {
	if ticketID == "" || buyerID == "" {
		return nil, status.Validation("ticket id is required")
	}

	t, err := s.store.Tickets.Get(ctx, ticketID)
	switch {
	case errors.Is(err, status.ErrNotFound):
		return nil, fmt.Errorf("checkout %s: %w", ticketID, status.ErrTicketUnavailable)
	case err != nil:
		return nil, err
	case t.SellerID == buyerID:
		return nil, status.Validation("you cannot buy your own ticket")
	case t.Status != models.TicketAvailable:
		return nil, fmt.Errorf("checkout %s: %w", ticketID, status.ErrTicketUnavailable)
	}

	hold := TicketHold{BuyerID: buyerID, PaymentID: s.newID()}
	current, held, err := s.holds.Hold(ctx, ticketID, hold, s.cfg.SessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w: %w", ticketID, status.ErrStorage, err)
	}
	if !held {
		return s.resume(ctx, ticketID, buyerID, current)
	}

	now := s.clock.Now().UTC()
	session := &models.PaymentSession{
		ID:        hold.PaymentID,
		TicketID:  t.ID,
		BuyerID:   buyerID,
		Amount:    t.Price,
		Currency:  s.cfg.Currency,
		Status:    models.PaymentPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTimeout),
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	ps, err := s.provider.CreateSession(pctx, &bank.SessionRequest{
		Reference:   session.ID,
		Amount:      session.Amount,
		Currency:    session.Currency,
		Description: fmt.Sprintf("Train ticket %s - %s", t.FromStation, t.ToStation),
		ExpiresIn:   s.cfg.SessionTimeout,
	})
	if err != nil {
		s.holds.Release(ctx, ticketID, hold)
		monitoring.TrackPaymentSession("provider_error")
		s.logger.Error("Failed to create payment session", "error", err, "ticket_id", ticketID, "buyer_id", buyerID)
		if !errors.Is(err, status.ErrPaymentProvider) {
			err = fmt.Errorf("%w: %w", status.ErrPaymentProvider, err)
		}
		return nil, err
	}

	session.RedirectURL = ps.RedirectURL
	session.ProviderRef = ps.ProviderRef

	if err := s.save(ctx, session, s.cfg.SessionTimeout); err != nil {
		s.holds.Release(ctx, ticketID, hold)
		return nil, err
	}

	monitoring.TrackPaymentSession(string(models.PaymentPending))
	s.logger.Info("Payment session created", "payment_id", session.ID, "ticket_id", ticketID, "buyer_id", buyerID)
	return session, nil
}

// resume hands back the open session behind an existing hold.
func (s *PaymentService) resume(ctx context.Context, ticketID, buyerID string, current TicketHold) (*models.PaymentSession, error) {
	if current.BuyerID != buyerID {
		return nil, fmt.Errorf("checkout %s: held by another buyer: %w", ticketID, status.ErrTicketUnavailable)
	}

	session, err := s.load(ctx, current.PaymentID)
	switch {
	case errors.Is(err, status.ErrNotFound):
		// the other checkout has not stored its session yet
		return nil, fmt.Errorf("checkout %s: checkout in progress: %w", ticketID, status.ErrTicketUnavailable)
	case err != nil:
		return nil, err
	case session.Status != models.PaymentPending:
		return nil, fmt.Errorf("checkout %s: payment %s is %s: %w", ticketID, session.ID, session.Status, status.ErrTicketUnavailable)
	}

	s.logger.Info("Payment session resumed", "payment_id", session.ID, "ticket_id", ticketID, "buyer_id", buyerID)
	return session, nil
}

// GetSession returns the caller's payment session. Sessions of other users
// are reported as not found.
func (s *PaymentService) GetSession(ctx context.Context, sessionID, userID string) (*models.PaymentSession, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.BuyerID != userID {
		return nil, fmt.Errorf("payment %s: %w", sessionID, status.ErrNotFound)
	}
	return session, nil
}

// HandleNotification applies a signed provider webhook. Redelivered
// notifications for settled sessions are acknowledged without side effects.
// Storage failures are returned so that the provider retries.
func (s *PaymentService) HandleNotification(ctx context.Context, body []byte, signature string) (*models.PaymentSession, error) {
	if !bank.VerifyPayload(s.cfg.WebhookSecret, body, signature) {
		return nil, fmt.Errorf("payment webhook: bad signature: %w", status.ErrUnauthorized)
	}

	var n models.PaymentNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, status.Validation("malformed notification")
	}
	if n.PaymentID == "" {
		return nil, status.Validation("payment_id is required")
	}

	session, err := s.load(ctx, n.PaymentID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.PaymentPending {
		return session, nil
	}

	if n.TransactionID != "" {
		session.ProviderRef = n.TransactionID
	}

	switch {
	case !isPaid(n.Status):
		session.Status = models.PaymentFailed
	case !n.Amount.IsZero() && !n.Amount.Equal(session.Amount):
		s.logger.Error("Payment amount mismatch",
			"payment_id", session.ID,
			"expected", session.Amount.String(),
			"got", n.Amount.String(),
		)
		session.Status = models.PaymentFailed
	default:
		if err := s.complete(ctx, session); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now().UTC()
	session.CompletedAt = &now

	if err := s.save(ctx, session, settledSessionTTL); err != nil {
		return nil, err
	}

	s.holds.Release(ctx, session.TicketID, TicketHold{BuyerID: session.BuyerID, PaymentID: session.ID})
	monitoring.TrackTicketHold(now.Sub(session.CreatedAt))
	monitoring.TrackPaymentSession(string(session.Status))

	if session.Status != models.PaymentCompleted {
		s.notifier.Notify(ctx, session.BuyerID, models.Event{
			Type:      models.EventPaymentFailed,
			TicketID:  session.TicketID,
			PaymentID: session.ID,
			Message:   failureMessage(session.Status),
			At:        now,
		})
	}

	s.logger.Info("Payment settled", "payment_id", session.ID, "ticket_id", session.TicketID, "status", session.Status)
	return session, nil
}

// complete runs the sale for a confirmed payment and sets the session status.
func (s *PaymentService) complete(ctx context.Context, session *models.PaymentSession) error {
	_, err := s.escrow.PurchasePaid(ctx, session.TicketID, session.BuyerID, session.ID)
	if err == nil {
		session.Status = models.PaymentCompleted
		return nil
	}
	if !errors.Is(err, status.ErrTicketUnavailable) && !errors.Is(err, status.ErrValidation) {
		return err
	}

	// A redelivery after a successful sale finds the ticket sold for this
	// session. Any other paid session for the ticket is a conflict, even one
	// from the same buyer.
	t, gerr := s.store.Tickets.Get(ctx, session.TicketID)
	if gerr == nil && t.PaymentID != nil && *t.PaymentID == session.ID {
		session.Status = models.PaymentCompleted
		return nil
	}

	s.logger.Error("Paid ticket could not be sold",
		"error", err,
		"payment_id", session.ID,
		"ticket_id", session.TicketID,
		"buyer_id", session.BuyerID,
	)
	session.Status = models.PaymentConflict
	return nil
}

func isPaid(providerStatus string) bool {
	switch strings.ToLower(providerStatus) {
	case "success", "succeeded", "completed", "paid":
		return true
	}
	return false
}

func failureMessage(st models.PaymentStatus) string {
	if st == models.PaymentConflict {
		return "The ticket was sold before your payment completed. Please contact support."
	}
	return "Payment was not completed."
}

func (s *PaymentService) save(ctx context.Context, session *models.PaymentSession, ttl time.Duration) error {
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode payment %s: %w", session.ID, err)
	}
	if err := s.redis.Set(ctx, paymentKey(session.ID), string(b), ttl).Err(); err != nil {
		return fmt.Errorf("save payment %s: %w: %w", session.ID, status.ErrStorage, err)
	}
	return nil
}

func (s *PaymentService) load(ctx context.Context, id string) (*models.PaymentSession, error) {
	if id == "" {
		return nil, status.Validation("payment id is required")
	}

	raw, err := s.redis.Get(ctx, paymentKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("payment %s: %w", id, status.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w: %w", id, status.ErrStorage, err)
	}

	var session models.PaymentSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode payment %s: %w", id, err)
	}
	return &session, nil
}
