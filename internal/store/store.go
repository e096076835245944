package store

import (
	"context"

	"github.com/pocketbase/dbx"
)

// Store groups the account, wallet and ticket stores over one connection.
type Store struct {
	conn     Conn
	Accounts *AccountStore
	Wallets  *WalletStore
	Tickets  *TicketStore
}

func New(conn Conn) *Store {
	return bind(conn)
}

func bind(conn Conn) *Store {
	db := conn.Builder()
	return &Store{
		conn:     conn,
		Accounts: &AccountStore{db: db},
		Wallets:  &WalletStore{db: db},
		Tickets:  &TicketStore{db: db},
	}
}

// InTx runs fn with stores bound to a single transaction. Any error returned
// by fn rolls the whole transaction back. Calling InTx on a transaction-bound
// Store runs fn in the enclosing transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.conn.Transactional(ctx, func(tx dbx.Builder) error {
		return fn(bind(&txConn{tx: tx}))
	})
}
