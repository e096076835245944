// Package gateway is the HTTP client of the hosted checkout provider.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"smarttrain/internal/services/bank"
)

var _ bank.Provider = (*Client)(nil)

type Config struct {
	BaseURL        string
	AccessTokenURL string

	ClientID     string
	ClientSecret string

	MerchantID string

	// KeyID and HMACKey sign session requests.
	KeyID   string
	HMACKey string

	// SwitchBackURL is where the provider sends the buyer after paying.
	SwitchBackURL string

	// RefreshInterval is how often the access token is renewed.
	RefreshInterval time.Duration
}

type Client struct {
	baseURL        string
	accessTokenURL string

	clientID     string
	clientSecret string
	merchantID   string

	keyID   string
	hmacKey string

	switchBackURL   string
	refreshInterval time.Duration

	// mu guards accessToken.
	mu          sync.Mutex
	accessToken string

	// refreshNow asks the refresher to renew the token before the next tick.
	refreshNow chan struct{}

	hc  *http.Client
	now func() time.Time
}

// New authenticates with the provider and starts the token refresher, which
// runs until ctx is cancelled.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	c := &Client{
		baseURL:         cfg.BaseURL,
		accessTokenURL:  cfg.AccessTokenURL,
		clientID:        cfg.ClientID,
		clientSecret:    cfg.ClientSecret,
		merchantID:      cfg.MerchantID,
		keyID:           cfg.KeyID,
		hmacKey:         cfg.HMACKey,
		switchBackURL:   cfg.SwitchBackURL,
		refreshInterval: cfg.RefreshInterval,

		refreshNow: make(chan struct{}, 1),

		hc:  &http.Client{Timeout: 10 * time.Second},
		now: time.Now,
	}
	if c.refreshInterval <= 0 {
		c.refreshInterval = 3 * time.Minute
	}

	token, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.setAccessToken(token)

	go c.refreshAccessToken(ctx)

	return c, nil
}

func (c *Client) CreateSession(ctx context.Context, req *bank.SessionRequest) (*bank.Session, error) {
	expiry := int(req.ExpiresIn / time.Minute)
	if expiry < 1 {
		expiry = 1
	}

	form := sessionForm{
		MerchantID:    c.merchantID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Reference:     req.Reference,
		Description:   req.Description,
		ExpiryMinutes: expiry,
		SwitchBackURL: c.switchBackURL,
	}

	reply, err := c.createSession(ctx, &form)
	if err != nil {
		return nil, err
	}

	return &bank.Session{
		ProviderRef: reply.SessionID,
		RedirectURL: reply.RedirectURL,
		ExpiresAt:   c.now().Add(time.Duration(expiry) * time.Minute),
	}, nil
}
