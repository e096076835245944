package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"smarttrain/internal/store"
	"smarttrain/internal/store/storetest"
	"smarttrain/models"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]models.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: map[string][]models.Event{}}
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, e models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[userID] = append(n.events[userID], e)
}

func (n *recordingNotifier) For(userID string) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Event(nil), n.events[userID]...)
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID, _ string) (string, error) { return "token-" + userID, nil }

var testEpoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// seedTicket lists one ticket directly through the store, bypassing the
// listing rules so trips in the past can be created.
func seedTicket(t *testing.T, s *store.Store, id, sellerID string, price int64, start time.Time, minutes int) {
	t.Helper()
	require.NoError(t, s.Tickets.Insert(context.Background(), []string{id}, models.NewTicket{
		SellerID:            sellerID,
		FromStation:         "Cairo",
		ToStation:           "Alexandria",
		Price:               decimal.NewFromInt(price),
		Type:                "second-class",
		ImageURL:            "https://img.example/" + id + ".png",
		TripStart:           start,
		TripDurationMinutes: minutes,
		Latitude:            30.04,
		Longitude:           31.23,
	}, start.Add(-24*time.Hour)))
}

func requireWallet(t *testing.T, s *store.Store, userID, available, locked string) {
	t.Helper()
	w, err := s.Wallets.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, available, w.AvailableBalance.String(), "available balance of %s", userID)
	require.Equal(t, locked, w.LockedBalance.String(), "locked balance of %s", userID)
}

// seedSoldTicket lists a 100 priced, 60 minute trip for "seller" and sells
// it to "buyer", creating both users on first use.
func seedSoldTicket(t *testing.T, escrow *EscrowService, s *store.Store, id string, start time.Time) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []string{"seller", "buyer"} {
		if _, err := s.Accounts.Get(ctx, u); err != nil {
			storetest.SeedUser(t, s, u)
		}
	}
	seedTicket(t, s, id, "seller", 100, start, 60)
	_, err := escrow.PurchaseTicket(ctx, id, "buyer")
	require.NoError(t, err)
}
