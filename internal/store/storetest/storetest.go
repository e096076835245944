// Package storetest opens throwaway sqlite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"smarttrain/internal/store"
	"smarttrain/models"
)

// New returns a Store backed by a fresh sqlite file with the schema applied.
func New(t testing.TB) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data.db")
	db, err := store.Open(path + "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, store.CreateSchema(db))
	return store.New(store.NewDBXConn(db))
}

// SeedUser inserts an account with an empty wallet.
func SeedUser(t testing.TB, s *store.Store, id string) *models.User {
	t.Helper()

	u := &models.User{
		ID:            id,
		FullName:      "User " + id,
		NationalID:    nationalIDFor(id),
		PasswordHash:  "x",
		TermsAccepted: true,
		CreatedAt:     time.Now().UTC(),
	}
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx *store.Store) error {
		if err := tx.Accounts.Insert(ctx, u); err != nil {
			return err
		}
		return tx.Wallets.Create(ctx, u.ID, u.CreatedAt)
	}))
	return u
}

// nationalIDFor derives a distinct 14 character id from a short test id.
func nationalIDFor(id string) string {
	const width = 14
	out := []byte("29001010000000")
	for i := 0; i < len(id) && i < width; i++ {
		out[width-1-i] = id[len(id)-1-i]
	}
	return string(out)
}
