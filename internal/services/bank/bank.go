// Package bank defines the payment provider boundary used by checkout.
package bank

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"smarttrain/internal/status"
	"smarttrain/utils"
)

// SessionRequest asks the provider to open a hosted payment page.
type SessionRequest struct {
	// Reference is echoed back by the provider in its webhook.
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	ExpiresIn   time.Duration
}

// Session is the provider side of a checkout.
type Session struct {
	ProviderRef string
	RedirectURL string
	ExpiresAt   time.Time
}

// Provider creates payment sessions. Implementations must honour ctx.
type Provider interface {
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)
}

type guarded struct {
	next    Provider
	breaker *utils.CircuitBreaker
}

// WithBreaker routes calls through cb and tags every failure with
// status.ErrPaymentProvider.
func WithBreaker(p Provider, cb *utils.CircuitBreaker) Provider {
	return &guarded{next: p, breaker: cb}
}

func (g *guarded) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	var session *Session
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		s, err := g.next.CreateSession(ctx, req)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		if errors.Is(err, status.ErrPaymentProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", g.breaker.Name(), status.ErrPaymentProvider, err)
	}
	return session, nil
}

// SignPayload returns the hex HMAC-SHA256 of body, as sent in webhook
// signature headers.
func SignPayload(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPayload checks a webhook signature in constant time.
func VerifyPayload(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hmac.Equal(h.Sum(nil), want)
}
