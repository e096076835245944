package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const grantTypeClientCredentials = "client_credentials"

const sessionPath = "/v1/checkout/sessions"

var errUnauthorized = errors.New("401 Unauthorized")

// refreshAccessToken renews the token every refreshInterval, or sooner when a
// call was rejected with 401. Failed renewals are retried with exponential
// backoff.
func (c *Client) refreshAccessToken(ctx context.Context) {
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refreshNow:
			slog.Info("Payment gateway token rejected, refreshing")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			if err == nil {
				c.setAccessToken(token)
				break Retry
			}

			slog.Warn("Payment gateway token refresh failed", "error", err, "retry_in", backOff)

			select {
			case <-ctx.Done():
				return
			case <-time.After(backOff):
				if backOff < time.Minute {
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// requestRefresh never blocks; one pending request is enough.
func (c *Client) requestRefresh() {
	select {
	case c.refreshNow <- struct{}{}:
	default:
	}
}

// connect exchanges the client credentials for an access token.
func (c *Client) connect(ctx context.Context) (string, error) {
	query := url.Values{"grant_type": []string{grantTypeClientCredentials}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accessTokenURL, strings.NewReader(query.Encode()))
	if err != nil {
		return "", fmt.Errorf("gateway connect: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway connect: status %d, body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("gateway connect: decode: %w", err)
	}
	if reply.AccessToken == "" {
		return "", errors.New("gateway connect: empty access token")
	}

	return fmt.Sprintf("%s %s", reply.TokenType, reply.AccessToken), nil
}

type sessionForm struct {
	MerchantID    string          `json:"merchantId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description"`
	ExpiryMinutes int             `json:"expiryMinutes"`
	SwitchBackURL string          `json:"switchBackURL"`
}

type sessionReply struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectURL"`
}

func (c *Client) createSession(ctx context.Context, f *sessionForm) (*sessionReply, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("gateway create session: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+sessionPath, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gateway create session: new request: %w", err)
	}
	c.setHeaders(req, b, uuid.NewString())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.requestRefresh()
		return nil, fmt.Errorf("gateway create session: %w", errUnauthorized)
	}

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway create session: status %d, body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		Status  string       `json:"status"`
		Message string       `json:"message"`
		Data    sessionReply `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("gateway create session: decode: %w", err)
	}
	if reply.Status != "00" {
		return nil, fmt.Errorf("gateway create session: status %q: %s", reply.Status, reply.Message)
	}
	if reply.Data.RedirectURL == "" {
		return nil, errors.New("gateway create session: missing redirect url")
	}

	return &reply.Data, nil
}
