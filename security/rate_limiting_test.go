package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(userAgent string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = "203.0.113.7:5123"
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

// newLimiter reads the peer address directly; RealIP needs a running app for
// its trusted proxy settings.
func newLimiter(client *redis.Client) *RateLimiter {
	l := NewRateLimiter(client)
	l.clientIP = func(e *core.RequestEvent) string { return e.RemoteIP() }
	return l
}

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := newLimiter(db)
	key := rateKey("login", "1.2.3.4")

	window := time.Minute.Milliseconds()
	for _, count := range []int64{1, 2, 3} {
		mock.ExpectEvalSha(countRequest.Hash(), []string{key}, window).SetVal(count)
	}

	for i, want := range []bool{true, true, false} {
		ok, err := limiter.Allow(context.Background(), "login", "1.2.3.4", 2)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i+1)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_CountAndExpiryShareOneCommand(t *testing.T) {
	db, mock := redismock.NewClientMock()
	key := rateKey("login", "1.2.3.4")

	// A single scripted command per request: no separate EXPIRE can be lost
	// between the increment and the TTL.
	mock.ExpectEvalSha(countRequest.Hash(), []string{key}, time.Minute.Milliseconds()).SetVal(int64(1))

	ok, err := newLimiter(db).Allow(context.Background(), "login", "1.2.3.4", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_LimitRejectsOverQuota(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mw := newLimiter(db).Limit("login", 10)

	mock.ExpectEvalSha(countRequest.Hash(), []string{rateKey("login", "203.0.113.7")}, time.Minute.Milliseconds()).SetVal(int64(11))

	e, rec := newEvent("Mozilla/5.0")
	require.NoError(t, mw(e))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_LimitFailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mw := newLimiter(db).Limit("login", 10)

	mock.ExpectEvalSha(countRequest.Hash(), []string{rateKey("login", "203.0.113.7")}, time.Minute.Milliseconds()).SetErr(errors.New("connection refused"))

	e, rec := newEvent("Mozilla/5.0")
	require.NoError(t, mw(e))

	assert.Equal(t, http.StatusOK, rec.Code, "nothing written, request passed on")
	assert.Zero(t, rec.Body.Len())
}

func TestRateLimiter_AntiBot(t *testing.T) {
	mw := NewRateLimiter(nil).AntiBot()

	tests := []struct {
		ua      string
		blocked bool
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", false},
		{"Googlebot/2.1", true},
		{"my-scraper/0.1", true},
		{"", false},
	}

	for _, tt := range tests {
		e, rec := newEvent(tt.ua)
		require.NoError(t, mw(e))
		if tt.blocked {
			assert.Equal(t, http.StatusForbidden, rec.Code, tt.ua)
		} else {
			assert.Zero(t, rec.Body.Len(), tt.ua)
		}
	}
}
