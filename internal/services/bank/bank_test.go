package bank

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"smarttrain/internal/status"
	"smarttrain/utils"
)

type providerFunc func(ctx context.Context, req *SessionRequest) (*Session, error)

func (f providerFunc) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	return f(ctx, req)
}

func TestWithBreaker_TagsFailures(t *testing.T) {
	p := WithBreaker(providerFunc(func(context.Context, *SessionRequest) (*Session, error) {
		return nil, errors.New("connection reset")
	}), utils.NewCircuitBreaker("gateway"))

	_, err := p.CreateSession(context.Background(), &SessionRequest{})
	assert.ErrorIs(t, err, status.ErrPaymentProvider)
	assert.ErrorContains(t, err, "connection reset")
}

func TestWithBreaker_OpenBreakerIsProviderError(t *testing.T) {
	calls := 0
	cb := utils.NewCircuitBreakerWithSettings("gateway", utils.BreakerSettings{MinRequests: 1, FailureRatio: 0.5})
	p := WithBreaker(providerFunc(func(context.Context, *SessionRequest) (*Session, error) {
		calls++
		return nil, errors.New("down")
	}), cb)

	_, _ = p.CreateSession(context.Background(), &SessionRequest{})
	_, err := p.CreateSession(context.Background(), &SessionRequest{})

	assert.ErrorIs(t, err, status.ErrPaymentProvider)
	assert.ErrorIs(t, err, utils.ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestWithBreaker_PassesSession(t *testing.T) {
	p := WithBreaker(providerFunc(func(_ context.Context, req *SessionRequest) (*Session, error) {
		return &Session{ProviderRef: "ref-" + req.Reference, RedirectURL: "https://pay.example"}, nil
	}), utils.NewCircuitBreaker("gateway"))

	s, err := p.CreateSession(context.Background(), &SessionRequest{Reference: "1"})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", s.ProviderRef)
}

func TestSignAndVerifyPayload(t *testing.T) {
	body := []byte(`{"payment_id":"pay_1","status":"success"}`)
	sig := SignPayload("whsec", body)

	assert.True(t, VerifyPayload("whsec", body, sig))
	assert.False(t, VerifyPayload("other", body, sig))
	assert.False(t, VerifyPayload("whsec", []byte(`{"payment_id":"pay_2"}`), sig))
	assert.False(t, VerifyPayload("whsec", body, "not-hex"))
	assert.False(t, VerifyPayload("", body, sig))
}

func TestSandbox_CreateSession(t *testing.T) {
	s := &Sandbox{SwitchBackURL: "http://localhost:3000/paid"}

	session, err := s.CreateSession(context.Background(), &SessionRequest{
		Reference: "pay_1",
		Amount:    decimal.NewFromInt(100),
		ExpiresIn: 10 * time.Minute,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(session.ProviderRef, "sbx_"))
	u, err := url.Parse(session.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", u.Query().Get("reference"))
}
