package store

import (
	"fmt"

	"github.com/pocketbase/dbx"
)

// The statements are portable between sqlite and postgres. Money columns hold
// minor units, time columns hold unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id             TEXT PRIMARY KEY,
		full_name      TEXT NOT NULL,
		national_id    TEXT NOT NULL UNIQUE,
		password_hash  TEXT NOT NULL,
		mobile         TEXT NOT NULL DEFAULT '',
		address        TEXT NOT NULL DEFAULT '',
		terms_accepted BOOLEAN NOT NULL DEFAULT FALSE,
		created        BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		user_id           TEXT PRIMARY KEY REFERENCES accounts (id),
		available_balance BIGINT NOT NULL DEFAULT 0 CHECK (available_balance >= 0),
		locked_balance    BIGINT NOT NULL DEFAULT 0 CHECK (locked_balance >= 0),
		updated           BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id                    TEXT PRIMARY KEY,
		seller_id             TEXT NOT NULL REFERENCES accounts (id),
		buyer_id              TEXT NULL REFERENCES accounts (id),
		from_station          TEXT NOT NULL,
		to_station            TEXT NOT NULL,
		price                 BIGINT NOT NULL CHECK (price > 0),
		type                  TEXT NOT NULL DEFAULT '',
		image_url             TEXT NOT NULL,
		trip_start            BIGINT NOT NULL,
		trip_duration_minutes INTEGER NOT NULL CHECK (trip_duration_minutes > 0),
		status                TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'sold')),
		payment_released      BOOLEAN NOT NULL DEFAULT FALSE,
		escrow_amount         BIGINT NOT NULL DEFAULT 0 CHECK (escrow_amount >= 0),
		latitude              DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude             DOUBLE PRECISION NOT NULL DEFAULT 0,
		created               BIGINT NOT NULL,
		sold_at               BIGINT NULL,
		released_at           BIGINT NULL,
		payment_id            TEXT NULL,
		CHECK ((status = 'available') = (buyer_id IS NULL)),
		CHECK (payment_released = FALSE OR status = 'sold')
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_pending_release ON tickets (status, payment_released)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_seller ON tickets (seller_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_buyer ON tickets (buyer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_route ON tickets (from_station, to_station)`,
}

// CreateSchema creates the marketplace tables. It is safe to run repeatedly.
func CreateSchema(db dbx.Builder) error {
	for _, stmt := range schema {
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// DropSchema removes the marketplace tables.
func DropSchema(db dbx.Builder) error {
	for _, table := range []string{"tickets", "wallets", "accounts"} {
		if _, err := db.NewQuery("DROP TABLE IF EXISTS " + table).Execute(); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
