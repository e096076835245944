package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"smarttrain/internal/status"
	"smarttrain/internal/store"
	"smarttrain/internal/store/storetest"
)

func newTestAccounts(t *testing.T) (*AccountService, *store.Store) {
	t.Helper()
	s := storetest.New(t)
	svc := NewAccountService(s, fakeIssuer{}, nil)
	svc.cost = bcrypt.MinCost
	svc.clock = newFixedClock(testEpoch)
	return svc, s
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		FullName:      "Mona Hassan",
		NationalID:    "29801011234567",
		Password:      "123456",
		Mobile:        "01000000000",
		Address:       "Giza",
		TermsAccepted: true,
	}
}

func TestRegister_CreatesUserAndEmptyWallet(t *testing.T) {
	svc, s := newTestAccounts(t)

	res, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "token-"+res.User.ID, res.Token)
	assert.Equal(t, "Mona Hassan", res.User.FullName)
	assert.NotEqual(t, "123456", res.User.PasswordHash)
	assert.Equal(t, testEpoch, res.User.CreatedAt)

	requireWallet(t, s, res.User.ID, "0", "0")

	stored, err := s.Accounts.GetByNationalID(context.Background(), "29801011234567")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, stored.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("123456")))
}

func TestRegister_DuplicateNationalID(t *testing.T) {
	svc, _ := newTestAccounts(t)

	_, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), validRegistration())
	assert.ErrorIs(t, err, status.ErrDuplicateUser)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{name: "missing name", mutate: func(r *RegisterRequest) { r.FullName = "  " }},
		{name: "short national id", mutate: func(r *RegisterRequest) { r.NationalID = "2980101123456" }},
		{name: "letters in national id", mutate: func(r *RegisterRequest) { r.NationalID = "2980101123456x" }},
		{name: "five digit password", mutate: func(r *RegisterRequest) { r.Password = "12345" }},
		{name: "non numeric password", mutate: func(r *RegisterRequest) { r.Password = "abcdef" }},
		{name: "terms not accepted", mutate: func(r *RegisterRequest) { r.TermsAccepted = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, s := newTestAccounts(t)
			req := validRegistration()
			tt.mutate(&req)

			_, err := svc.Register(context.Background(), req)
			assert.ErrorIs(t, err, status.ErrValidation)

			_, err = s.Accounts.GetByNationalID(context.Background(), req.NationalID)
			assert.ErrorIs(t, err, status.ErrNotFound)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestAccounts(t)
	reg, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), LoginRequest{NationalID: "29801011234567", Password: "123456"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.Equal(t, "token-"+reg.User.ID, res.Token)

	failures := []LoginRequest{
		{NationalID: "29801011234567", Password: "654321"},
		{NationalID: "29801019999999", Password: "123456"},
		{NationalID: "", Password: "123456"},
		{NationalID: "29801011234567"},
	}
	for _, req := range failures {
		_, err := svc.Login(context.Background(), req)
		assert.ErrorIs(t, err, status.ErrInvalidCredentials, "login %+v", req)
	}
}

func TestWallet(t *testing.T) {
	svc, s := newTestAccounts(t)
	storetest.SeedUser(t, s, "u1")

	w, err := svc.Wallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w.AvailableBalance.IsZero())

	_, err = svc.Wallet(context.Background(), "nobody")
	assert.ErrorIs(t, err, status.ErrNotFound)
}
