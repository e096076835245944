package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
	"smarttrain/internal/status"
	"smarttrain/models"
)

type WalletStore struct {
	db dbx.Builder
}

type walletRow struct {
	UserID           string `db:"user_id"`
	AvailableBalance int64  `db:"available_balance"`
	LockedBalance    int64  `db:"locked_balance"`
	Updated          int64  `db:"updated"`
}

func (r *walletRow) toModel() *models.Wallet {
	return &models.Wallet{
		UserID:           r.UserID,
		AvailableBalance: models.FromMinor(r.AvailableBalance),
		LockedBalance:    models.FromMinor(r.LockedBalance),
		UpdatedAt:        time.UnixMilli(r.Updated).UTC(),
	}
}

// Create inserts the zero-balance wallet of a newly registered user.
func (s *WalletStore) Create(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.Insert("wallets", dbx.Params{
		"user_id":           userID,
		"available_balance": 0,
		"locked_balance":    0,
		"updated":           at.UnixMilli(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return storageErr("wallets: create", err)
	}
	return nil
}

func (s *WalletStore) Get(ctx context.Context, userID string) (*models.Wallet, error) {
	var row walletRow
	err := s.db.Select("user_id", "available_balance", "locked_balance", "updated").
		From("wallets").
		Where(dbx.HashExp{"user_id": userID}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, notFound("wallets: get", err)
	}
	return row.toModel(), nil
}

// Lock adds amount to the user's locked balance.
func (s *WalletStore) Lock(ctx context.Context, userID string, amount decimal.Decimal, at time.Time) error {
	minor, err := minorUnits("wallets: lock", amount)
	if err != nil {
		return err
	}

	res, err := s.db.NewQuery(`
		UPDATE wallets
		SET locked_balance = locked_balance + {:amount}, updated = {:at}
		WHERE user_id = {:user}`).
		Bind(dbx.Params{"amount": minor, "at": at.UnixMilli(), "user": userID}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return storageErr("wallets: lock", err)
	}
	if rowsAffected(res) != 1 {
		return fmt.Errorf("wallets: lock %s: %w", userID, status.ErrNotFound)
	}
	return nil
}

// Release moves amount from the locked to the available balance. The update
// is refused when the locked balance does not cover amount.
func (s *WalletStore) Release(ctx context.Context, userID string, amount decimal.Decimal, at time.Time) error {
	minor, err := minorUnits("wallets: release", amount)
	if err != nil {
		return err
	}

	res, err := s.db.NewQuery(`
		UPDATE wallets
		SET available_balance = available_balance + {:amount},
			locked_balance = locked_balance - {:amount},
			updated = {:at}
		WHERE user_id = {:user} AND locked_balance >= {:amount}`).
		Bind(dbx.Params{"amount": minor, "at": at.UnixMilli(), "user": userID}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return storageErr("wallets: release", err)
	}
	if rowsAffected(res) != 1 {
		return fmt.Errorf("wallets: release %s for %s: locked balance missing or too low: %w", amount, userID, status.ErrStorage)
	}
	return nil
}
