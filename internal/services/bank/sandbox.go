package bank

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Sandbox is a Provider for local development. It never charges anything and
// redirects straight to the switch-back URL with the reference attached.
type Sandbox struct {
	SwitchBackURL string
}

func (s *Sandbox) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ref := "sbx_" + uuid.NewString()
	redirect := s.SwitchBackURL + "?" + url.Values{
		"reference":    []string{req.Reference},
		"provider_ref": []string{ref},
	}.Encode()

	return &Session{
		ProviderRef: ref,
		RedirectURL: redirect,
		ExpiresAt:   time.Now().Add(req.ExpiresIn),
	}, nil
}
