package handlers

import (
	"context"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"smarttrain/internal/services"
	"smarttrain/models"
)

type AccountService interface {
	Register(ctx context.Context, req services.RegisterRequest) (*services.AuthResult, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.AuthResult, error)
	Wallet(ctx context.Context, userID string) (*models.Wallet, error)
}

type AccountHandler struct {
	accounts AccountService
}

func NewAccountHandler(accounts AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Register - POST /api/register
func (h *AccountHandler) Register(e *core.RequestEvent) error {
	var req services.RegisterRequest
	if err := bindJSON(e, &req); err != nil {
		return respondError(e, err)
	}

	res, err := h.accounts.Register(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, res)
}

// Login - POST /api/login
func (h *AccountHandler) Login(e *core.RequestEvent) error {
	var req services.LoginRequest
	if err := bindJSON(e, &req); err != nil {
		return respondError(e, err)
	}

	res, err := h.accounts.Login(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, res)
}

// Wallet - GET /api/wallet
func (h *AccountHandler) Wallet(e *core.RequestEvent) error {
	userID, err := callerID(e)
	if err != nil {
		return respondError(e, err)
	}

	w, err := h.accounts.Wallet(e.Request.Context(), userID)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, w)
}

// GPSCheck - POST /api/gps-check
func (h *AccountHandler) GPSCheck(e *core.RequestEvent) error {
	var loc services.Location
	if err := bindJSON(e, &loc); err != nil {
		return respondError(e, err)
	}
	if err := loc.Check(); err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "GPS verified"})
}
