package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"smarttrain/internal/services/bank"
	"smarttrain/internal/status"
	"smarttrain/internal/store"
	"smarttrain/internal/store/storetest"
	"smarttrain/models"
)

const webhookSecret = "whsec_test"

type fakeProvider struct {
	err   error
	block bool
	got   *bank.SessionRequest
	calls int
}

func (p *fakeProvider) CreateSession(ctx context.Context, req *bank.SessionRequest) (*bank.Session, error) {
	p.got = req
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	return &bank.Session{
		ProviderRef: "prov_1",
		RedirectURL: "https://pay.example/s/prov_1",
		ExpiresAt:   testEpoch.Add(15 * time.Minute),
	}, nil
}

type paymentFixture struct {
	svc      *PaymentService
	store    *store.Store
	mock     redismock.ClientMock
	provider *fakeProvider
	notifier *recordingNotifier
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	escrow, s, clock, notifier := newTestEscrow(t)
	storetest.SeedUser(t, s, "seller")
	storetest.SeedUser(t, s, "buyer")
	seedTicket(t, s, "t1", "seller", 100, testEpoch.Add(24*time.Hour), 60)

	db, mock := redismock.NewClientMock()
	provider := &fakeProvider{}
	svc := NewPaymentService(db, s, provider, escrow, NewHoldService(db), notifier, PaymentConfig{
		Currency:        "EGP",
		SessionTimeout:  15 * time.Minute,
		ProviderTimeout: 50 * time.Millisecond,
		WebhookSecret:   webhookSecret,
	}, nil)
	svc.clock = clock
	svc.newID = func() string { return "pay_1" }

	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return &paymentFixture{svc: svc, store: s, mock: mock, provider: provider, notifier: notifier}
}

func pendingSession() *models.PaymentSession {
	return &models.PaymentSession{
		ID:          "pay_1",
		TicketID:    "t1",
		BuyerID:     "buyer",
		Amount:      models.FromMinor(10000),
		Currency:    "EGP",
		Status:      models.PaymentPending,
		RedirectURL: "https://pay.example/s/prov_1",
		ProviderRef: "prov_1",
		CreatedAt:   testEpoch,
		ExpiresAt:   testEpoch.Add(15 * time.Minute),
	}
}

func encode(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestCheckout_CreatesSession(t *testing.T) {
	f := newPaymentFixture(t)

	f.mock.ExpectSetNX(holdKey("t1"), "buyer|pay_1", 15*time.Minute).SetVal(true)
	f.mock.ExpectSet(paymentKey("pay_1"), encode(t, pendingSession()), 15*time.Minute).SetVal("OK")

	session, err := f.svc.Checkout(context.Background(), "t1", "buyer")
	require.NoError(t, err)
	assert.Equal(t, pendingSession(), session)

	require.NotNil(t, f.provider.got)
	assert.Equal(t, "pay_1", f.provider.got.Reference)
	assert.Equal(t, "100", f.provider.got.Amount.String())
	assert.Equal(t, "EGP", f.provider.got.Currency)
	assert.Equal(t, "Train ticket Cairo - Alexandria", f.provider.got.Description)

	tk, err := f.store.Tickets.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, tk.Status, "ticket stays available until payment is confirmed")
}

func TestCheckout_Rejections(t *testing.T) {
	t.Run("own ticket", func(t *testing.T) {
		f := newPaymentFixture(t)
		_, err := f.svc.Checkout(context.Background(), "t1", "seller")
		assert.ErrorIs(t, err, status.ErrValidation)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		f := newPaymentFixture(t)
		_, err := f.svc.Checkout(context.Background(), "nope", "buyer")
		assert.ErrorIs(t, err, status.ErrTicketUnavailable)
	})

	t.Run("sold ticket", func(t *testing.T) {
		f := newPaymentFixture(t)
		storetest.SeedUser(t, f.store, "other")
		_, err := f.store.Tickets.MarkSold(context.Background(), "t1", "other", testEpoch)
		require.NoError(t, err)

		_, err = f.svc.Checkout(context.Background(), "t1", "buyer")
		assert.ErrorIs(t, err, status.ErrTicketUnavailable)
	})

	t.Run("held by another buyer", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.mock.ExpectSetNX(holdKey("t1"), "buyer|pay_1", 15*time.Minute).SetVal(false)
		f.mock.ExpectGet(holdKey("t1")).SetVal("other|pay_0")

		_, err := f.svc.Checkout(context.Background(), "t1", "buyer")
		assert.ErrorIs(t, err, status.ErrTicketUnavailable)
		assert.Nil(t, f.provider.got, "provider must not be called")
	})

	t.Run("hold storage failure", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.mock.ExpectSetNX(holdKey("t1"), "buyer|pay_1", 15*time.Minute).SetErr(errors.New("connection refused"))

		_, err := f.svc.Checkout(context.Background(), "t1", "buyer")
		assert.ErrorIs(t, err, status.ErrStorage)
	})
}

func TestCheckout_SameBuyerResumesOpenSession(t *testing.T) {
	f := newPaymentFixture(t)
	ids := []string{"pay_1", "pay_2"}
	f.svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	f.mock.ExpectSetNX(holdKey("t1"), "buyer|pay_1", 15*time.Minute).SetVal(true)
	f.mock.ExpectSet(paymentKey("pay_1"), encode(t, pendingSession()), 15*time.Minute).SetVal("OK")
	f.mock.ExpectSetNX(holdKey("t1"), "buyer|pay_2", 15*time.Minute).SetVal(false)
	f.mock.ExpectGet(holdKey("t1")).SetVal("buyer|pay_1")
	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(encode(t, pendingSession()))

	first, err := f.svc.Checkout(context.Background(), "t1", "buyer")
	require.NoError(t, err)
	second, err := f.svc.Checkout(context.Background(), "t1", "buyer")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.Equal(t, 1, f.provider.calls, "only one provider session per hold")
}

func TestCheckout_HoldWithoutOpenSession(t *testing.T) {
	tests := []struct {
		name    string
		session func(t *testing.T, m redismock.ClientMock)
	}{
		{name: "session not stored yet", session: func(t *testing.T, m redismock.ClientMock) {
			m.ExpectGet(paymentKey("pay_0")).RedisNil()
		}},
		{name: "session already settled", session: func(t *testing.T, m redismock.ClientMock) {
			settledSession := settled(models.PaymentFailed)
			settledSession.ID = "pay_0"
			m.ExpectGet(paymentKey("pay_0")).SetVal(encode(t, settledSession))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture(t)
			f.mock.ExpectSetNX(holdKey("t1"), "buyer|pay_1", 15*time.Minute).SetVal(false)
			f.mock.ExpectGet(holdKey("t1")).SetVal("buyer|pay_0")
			tt.session(t, f.mock)

			_, err := f.svc.Checkout(context.Background(), "t1", "buyer")
			assert.ErrorIs(t, err, status.ErrTicketUnavailable)
			assert.Zero(t, f.provider.calls)
		})
	}
}

func TestCheckout_ProviderFailureReleasesHold(t *testing.T) {
	tests := []struct {
		name     string
		provider fakeProvider
	}{
		{name: "provider error", provider: fakeProvider{err: errors.New("gateway said no")}},
		{name: "provider timeout", provider: fakeProvider{block: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture(t)
			*f.provider = tt.provider

			f.mock.ExpectSetNX(holdKey("t1"), "buyer|pay_1", 15*time.Minute).SetVal(true)
			f.mock.ExpectEvalSha(releaseHold.Hash(), []string{holdKey("t1")}, "buyer|pay_1").SetVal(int64(1))

			_, err := f.svc.Checkout(context.Background(), "t1", "buyer")
			assert.ErrorIs(t, err, status.ErrPaymentProvider)

			tk, err := f.store.Tickets.Get(context.Background(), "t1")
			require.NoError(t, err)
			assert.Equal(t, models.TicketAvailable, tk.Status)
		})
	}
}

func TestGetSession(t *testing.T) {
	f := newPaymentFixture(t)
	raw := encode(t, pendingSession())

	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(raw)
	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(raw)
	f.mock.ExpectGet(paymentKey("pay_2")).RedisNil()

	session, err := f.svc.GetSession(context.Background(), "pay_1", "buyer")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, session.Status)

	_, err = f.svc.GetSession(context.Background(), "pay_1", "someone-else")
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = f.svc.GetSession(context.Background(), "pay_2", "buyer")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func notificationBody(t *testing.T, st, amount string) []byte {
	t.Helper()
	return []byte(`{"payment_id":"pay_1","status":"` + st + `","transaction_id":"txn_9","amount":"` + amount + `"}`)
}

func settled(st models.PaymentStatus) *models.PaymentSession {
	s := pendingSession()
	s.Status = st
	s.ProviderRef = "txn_9"
	at := testEpoch
	s.CompletedAt = &at
	return s
}

func TestHandleNotification_Success(t *testing.T) {
	f := newPaymentFixture(t)
	body := notificationBody(t, "success", "100")

	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(encode(t, pendingSession()))
	f.mock.ExpectSet(paymentKey("pay_1"), encode(t, settled(models.PaymentCompleted)), settledSessionTTL).SetVal("OK")
	f.mock.ExpectEvalSha(releaseHold.Hash(), []string{holdKey("t1")}, "buyer|pay_1").SetVal(int64(1))

	session, err := f.svc.HandleNotification(context.Background(), body, bank.SignPayload(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, session.Status)

	tk, err := f.store.Tickets.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, tk.Status)
	assert.Equal(t, "buyer", *tk.BuyerID)
	requireWallet(t, f.store, "seller", "0", "90")
}

func TestHandleNotification_RedeliveryIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	body := notificationBody(t, "success", "100")

	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(encode(t, settled(models.PaymentCompleted)))

	session, err := f.svc.HandleNotification(context.Background(), body, bank.SignPayload(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, session.Status)

	tk, err := f.store.Tickets.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, tk.Status, "a settled session has no side effects")
}

func TestHandleNotification_RetryAfterSaveFailure(t *testing.T) {
	f := newPaymentFixture(t)
	body := notificationBody(t, "success", "100")
	sig := bank.SignPayload(webhookSecret, body)

	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(encode(t, pendingSession()))
	f.mock.ExpectSet(paymentKey("pay_1"), encode(t, settled(models.PaymentCompleted)), settledSessionTTL).SetErr(errors.New("connection reset"))

	_, err := f.svc.HandleNotification(context.Background(), body, sig)
	require.ErrorIs(t, err, status.ErrStorage)

	// The provider retries; the ticket already belongs to this buyer.
	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(encode(t, pendingSession()))
	f.mock.ExpectSet(paymentKey("pay_1"), encode(t, settled(models.PaymentCompleted)), settledSessionTTL).SetVal("OK")
	f.mock.ExpectEvalSha(releaseHold.Hash(), []string{holdKey("t1")}, "buyer|pay_1").SetVal(int64(1))

	session, err := f.svc.HandleNotification(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, session.Status)
	requireWallet(t, f.store, "seller", "0", "90")
}

func TestHandleNotification_FailedPayment(t *testing.T) {
	tests := []struct {
		name   string
		body   func(t *testing.T) []byte
		status models.PaymentStatus
	}{
		{name: "declined", body: func(t *testing.T) []byte { return notificationBody(t, "failed", "100") }, status: models.PaymentFailed},
		{name: "amount mismatch", body: func(t *testing.T) []byte { return notificationBody(t, "success", "90") }, status: models.PaymentFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture(t)
			body := tt.body(t)

			f.mock.ExpectGet(paymentKey("pay_1")).SetVal(encode(t, pendingSession()))
			f.mock.ExpectSet(paymentKey("pay_1"), encode(t, settled(tt.status)), settledSessionTTL).SetVal("OK")
			f.mock.ExpectEvalSha(releaseHold.Hash(), []string{holdKey("t1")}, "buyer|pay_1").SetVal(int64(1))

			session, err := f.svc.HandleNotification(context.Background(), body, bank.SignPayload(webhookSecret, body))
			require.NoError(t, err)
			assert.Equal(t, tt.status, session.Status)

			tk, err := f.store.Tickets.Get(context.Background(), "t1")
			require.NoError(t, err)
			assert.Equal(t, models.TicketAvailable, tk.Status)

			events := f.notifier.For("buyer")
			require.Len(t, events, 1)
			assert.Equal(t, models.EventPaymentFailed, events[0].Type)
		})
	}
}

func TestHandleNotification_TicketSoldElsewhere(t *testing.T) {
	f := newPaymentFixture(t)
	storetest.SeedUser(t, f.store, "other")
	_, err := f.store.Tickets.MarkSold(context.Background(), "t1", "other", testEpoch)
	require.NoError(t, err)

	body := notificationBody(t, "success", "100")
	f.mock.ExpectGet(paymentKey("pay_1")).SetVal(encode(t, pendingSession()))
	f.mock.ExpectSet(paymentKey("pay_1"), encode(t, settled(models.PaymentConflict)), settledSessionTTL).SetVal("OK")
	f.mock.ExpectEvalSha(releaseHold.Hash(), []string{holdKey("t1")}, "buyer|pay_1").SetVal(int64(1))

	session, err := f.svc.HandleNotification(context.Background(), body, bank.SignPayload(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConflict, session.Status)
	require.Len(t, f.notifier.For("buyer"), 1)
}

func TestHandleNotification_SecondPaidSessionFromSameBuyer(t *testing.T) {
	f := newPaymentFixture(t)
	escrow := f.svc.escrow.(*EscrowService)
	_, err := escrow.PurchasePaid(context.Background(), "t1", "buyer", "pay_1")
	require.NoError(t, err)

	second := pendingSession()
	second.ID = "pay_2"
	body := []byte(`{"payment_id":"pay_2","status":"success","transaction_id":"txn_9","amount":"100"}`)

	want := settled(models.PaymentConflict)
	want.ID = "pay_2"
	f.mock.ExpectGet(paymentKey("pay_2")).SetVal(encode(t, second))
	f.mock.ExpectSet(paymentKey("pay_2"), encode(t, want), settledSessionTTL).SetVal("OK")
	f.mock.ExpectEvalSha(releaseHold.Hash(), []string{holdKey("t1")}, "buyer|pay_2").SetVal(int64(0))

	session, err := f.svc.HandleNotification(context.Background(), body, bank.SignPayload(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConflict, session.Status, "the ticket was paid for by another session")

	events := f.notifier.For("buyer")
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventPaymentFailed, events[len(events)-1].Type)
	requireWallet(t, f.store, "seller", "0", "90")
}

func TestHandleNotification_Rejections(t *testing.T) {
	f := newPaymentFixture(t)
	body := notificationBody(t, "success", "100")

	_, err := f.svc.HandleNotification(context.Background(), body, "deadbeef")
	assert.ErrorIs(t, err, status.ErrUnauthorized)

	garbage := []byte("{not json")
	_, err = f.svc.HandleNotification(context.Background(), garbage, bank.SignPayload(webhookSecret, garbage))
	assert.ErrorIs(t, err, status.ErrValidation)

	noID := []byte(`{"status":"success"}`)
	_, err = f.svc.HandleNotification(context.Background(), noID, bank.SignPayload(webhookSecret, noID))
	assert.ErrorIs(t, err, status.ErrValidation)

	unknown := []byte(`{"payment_id":"pay_404","status":"success"}`)
	f.mock.ExpectGet(paymentKey("pay_404")).RedisNil()
	_, err = f.svc.HandleNotification(context.Background(), unknown, bank.SignPayload(webhookSecret, unknown))
	assert.ErrorIs(t, err, status.ErrNotFound)
}
