// Package auth issues and verifies the bearer tokens handed out at
// registration and login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"smarttrain/internal/status"
)

const issuer = "smarttrain"

// Claims identifies the caller. The subject is the user id.
type Claims struct {
	NationalID string `json:"nid"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func New(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the user.
func (a *Authenticator) Issue(userID, nationalID string) (string, error) {
	now := a.now()
	claims := Claims{
		NationalID: nationalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify parses and validates token. Any failure is status.ErrInvalidToken.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", status.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", status.ErrInvalidToken)
	}
	return &claims, nil
}

// Authenticate extracts and verifies the bearer token of r. A missing
// header is status.ErrUnauthorized.
func (a *Authenticator) Authenticate(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, status.ErrUnauthorized
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: malformed authorization header", status.ErrInvalidToken)
	}
	return a.Verify(strings.TrimSpace(token))
}

type ctxKey struct{}

// WithUser stores the authenticated claims in ctx.
func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// UserFrom returns the claims stored by WithUser.
func UserFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// UserID returns the caller's id or status.ErrUnauthorized.
func UserID(ctx context.Context) (string, error) {
	c, ok := UserFrom(ctx)
	if !ok || c.Subject == "" {
		return "", status.ErrUnauthorized
	}
	return c.Subject, nil
}
