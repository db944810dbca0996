package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Schema is applied at startup. Statements are idempotent so restarts are
// safe without a separate migration tool.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS persons (
		id UUID PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		document VARCHAR(14) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		person_id UUID NOT NULL REFERENCES persons(id),
		branch VARCHAR(10) NOT NULL,
		number VARCHAR(20) NOT NULL UNIQUE,
		balance NUMERIC(18,2) NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS movements (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		kind VARCHAR(32) NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		description VARCHAR(255) NOT NULL,
		original_movement_id UUID REFERENCES movements(id),
		is_reverted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cards (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		type VARCHAR(10) NOT NULL,
		number VARCHAR(16) NOT NULL UNIQUE,
		cvv VARCHAR(3) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_person_id ON accounts(person_id)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_account_created ON movements(account_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_account_id ON cards(account_id)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	log.Println("Database schema ensured")
	return nil
}
