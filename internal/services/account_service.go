package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"smarttrain/internal/status"
	"smarttrain/internal/store"
	"smarttrain/models"
)

var (
	nationalIDPattern = regexp.MustCompile(`^[0-9]{14}$`)
	passwordPattern   = regexp.MustCompile(`^[0-9]{6}$`)
)

// TokenIssuer signs session tokens; auth.Authenticator implements it.
type TokenIssuer interface {
	Issue(userID, nationalID string) (string, error)
}

type RegisterRequest struct {
	FullName      string `json:"fullName"`
	NationalID    string `json:"nationalId"`
	Password      string `json:"password"`
	Mobile        string `json:"mobile"`
	Address       string `json:"address"`
	TermsAccepted bool   `json:"termsAccepted"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required.Error("Full name is required"), validation.Length(2, 120)),
		validation.Field(&r.NationalID, validation.Required.Error("National ID must be 14 digits"), validation.Match(nationalIDPattern).Error("National ID must be 14 digits")),
		validation.Field(&r.Password, validation.Required.Error("Password must be 6 digits"), validation.Match(passwordPattern).Error("Password must be 6 digits")),
		validation.Field(&r.Mobile, validation.Length(0, 20)),
		validation.Field(&r.Address, validation.Length(0, 255)),
		validation.Field(&r.TermsAccepted, validation.Required.Error("Terms must be accepted")),
	)
}

type LoginRequest struct {
	NationalID string `json:"nationalId"`
	Password   string `json:"password"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type AccountService struct {
	store  *store.Store
	tokens TokenIssuer
	clock  Clock
	cost   int
	logger *slog.Logger
}

func NewAccountService(s *store.Store, tokens TokenIssuer, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{store: s, tokens: tokens, clock: SystemClock, cost: bcrypt.DefaultCost, logger: logger}
}

// Register creates the user and its zero-balance wallet in one transaction
// and returns a session token.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.NationalID = strings.TrimSpace(req.NationalID)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.Address = strings.TrimSpace(req.Address)

	if err := invalid(req.Validate()); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:            uuid.NewString(),
		FullName:      req.FullName,
		NationalID:    req.NationalID,
		PasswordHash:  string(hash),
		Mobile:        req.Mobile,
		Address:       req.Address,
		TermsAccepted: req.TermsAccepted,
		CreatedAt:     s.clock.Now().UTC(),
	}

	err = s.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.Accounts.Insert(ctx, user); err != nil {
			return err
		}
		return tx.Wallets.Create(ctx, user.ID, user.CreatedAt)
	})
	if err != nil {
		if !errors.Is(err, status.ErrDuplicateUser) {
			s.logger.Error("Failed to register user", "error", err)
		}
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.NationalID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User registered", "user_id", user.ID)
	return &AuthResult{Token: token, User: user}, nil
}

// Login checks the national id and password. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	nationalID := strings.TrimSpace(req.NationalID)
	if nationalID == "" || req.Password == "" {
		return nil, status.ErrInvalidCredentials
	}

	user, err := s.store.Accounts.GetByNationalID(ctx, nationalID)
	if errors.Is(err, status.ErrNotFound) {
		return nil, status.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, status.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.NationalID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Wallet returns the caller's balances.
func (s *AccountService) Wallet(ctx context.Context, userID string) (*models.Wallet, error) {
	return s.store.Wallets.Get(ctx, userID)
}
