package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"smarttrain/internal/status"
	"smarttrain/models"

	_ "modernc.org/sqlite"
)

// Conn is the relational store consumed by the stores: a query builder plus
// the ability to run a function inside one transaction.
type Conn interface {
	Builder() dbx.Builder
	Transactional(ctx context.Context, fn func(tx dbx.Builder) error) error
}

type dbxConn struct {
	db *dbx.DB
}

// NewDBXConn wraps a standalone dbx database (sqlite file or postgres).
func NewDBXConn(db *dbx.DB) Conn {
	return &dbxConn{db: db}
}

func (c *dbxConn) Builder() dbx.Builder { return c.db }

func (c *dbxConn) Transactional(ctx context.Context, fn func(tx dbx.Builder) error) error {
	var fnErr error
	err := c.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		fnErr = fn(tx)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return storageErr("transaction", err)
	}
	return nil
}

type appConn struct {
	app core.App
}

// NewAppConn runs the stores on the pocketbase application database.
func NewAppConn(app core.App) Conn {
	return &appConn{app: app}
}

func (c *appConn) Builder() dbx.Builder { return c.app.DB() }

func (c *appConn) Transactional(ctx context.Context, fn func(tx dbx.Builder) error) error {
	var fnErr error
	err := c.app.RunInTransaction(func(txApp core.App) error {
		if err := ctx.Err(); err != nil {
			fnErr = err
			return err
		}
		fnErr = fn(txApp.DB())
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return storageErr("transaction", err)
	}
	return nil
}

// txConn is handed to code already running inside a transaction.
type txConn struct {
	tx dbx.Builder
}

func (c *txConn) Builder() dbx.Builder { return c.tx }

func (c *txConn) Transactional(_ context.Context, fn func(tx dbx.Builder) error) error {
	return fn(c.tx)
}

// Open opens a standalone database from a DATABASE_URL style string.
// postgres:// and postgresql:// URLs use lib/pq, anything else is treated as
// a sqlite file path.
func Open(url string) (*dbx.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver = "postgres"
	}

	db, err := dbx.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time keeps sqlite from returning SQLITE_BUSY mid-transaction
		db.DB().SetMaxOpenConns(1)
	}
	return db, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, status.ErrStorage, err)
}

// minorUnits converts an amount for storage. Amounts that do not fit the
// column are a client error.
func minorUnits(op string, d decimal.Decimal) (int64, error) {
	v, err := models.ToMinor(d)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, status.ErrValidation, err)
	}
	return v, nil
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, status.ErrNotFound)
	}
	return storageErr(op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
