package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"smarttrain/internal/status"
	"smarttrain/models"
)

type AccountStore struct {
	db dbx.Builder
}

var accountColumns = []string{
	"id", "full_name", "national_id", "password_hash", "mobile", "address", "terms_accepted", "created",
}

type accountRow struct {
	ID            string `db:"id"`
	FullName      string `db:"full_name"`
	NationalID    string `db:"national_id"`
	PasswordHash  string `db:"password_hash"`
	Mobile        string `db:"mobile"`
	Address       string `db:"address"`
	TermsAccepted bool   `db:"terms_accepted"`
	Created       int64  `db:"created"`
}

func (r *accountRow) toModel() *models.User {
	return &models.User{
		ID:            r.ID,
		FullName:      r.FullName,
		NationalID:    r.NationalID,
		PasswordHash:  r.PasswordHash,
		Mobile:        r.Mobile,
		Address:       r.Address,
		TermsAccepted: r.TermsAccepted,
		CreatedAt:     time.UnixMilli(r.Created).UTC(),
	}
}

// Insert stores a new user. A taken national id yields status.ErrDuplicateUser.
func (s *AccountStore) Insert(ctx context.Context, u *models.User) error {
	_, err := s.db.Insert("accounts", dbx.Params{
		"id":             u.ID,
		"full_name":      u.FullName,
		"national_id":    u.NationalID,
		"password_hash":  u.PasswordHash,
		"mobile":         u.Mobile,
		"address":        u.Address,
		"terms_accepted": u.TermsAccepted,
		"created":        u.CreatedAt.UnixMilli(),
	}).WithContext(ctx).Execute()
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("accounts: insert: %w", status.ErrDuplicateUser)
		}
		return storageErr("accounts: insert", err)
	}
	return nil
}

func (s *AccountStore) Get(ctx context.Context, id string) (*models.User, error) {
	return s.getBy(ctx, "id", id)
}

func (s *AccountStore) GetByNationalID(ctx context.Context, nationalID string) (*models.User, error) {
	return s.getBy(ctx, "national_id", nationalID)
}

func (s *AccountStore) getBy(ctx context.Context, column, value string) (*models.User, error) {
	var row accountRow
	err := s.db.Select(accountColumns...).
		From("accounts").
		Where(dbx.HashExp{column: value}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, notFound("accounts: get by "+column, err)
	}
	return row.toModel(), nil
}
