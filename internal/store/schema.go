package store

import (
	"context"
	"fmt"
)

// Schema creation is dialect-specific only in how row ids are assigned.

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_login TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		transaction_type TEXT NOT NULL CHECK (transaction_type IN ('INCOME', 'EXPENSE')),
		user_id INTEGER NOT NULL REFERENCES users(id),
		UNIQUE (name, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount REAL NOT NULL CHECK (amount > 0),
		date TEXT DEFAULT (date('now')),
		description TEXT,
		is_recurring BOOLEAN DEFAULT 0,
		recurrence_period TEXT DEFAULT 'NONE'
			CHECK (recurrence_period IN ('NONE', 'DAILY', 'WEEKLY', 'MONTHLY', 'YEARLY')),
		transaction_type TEXT NOT NULL CHECK (transaction_type IN ('INCOME', 'EXPENSE')),
		category_id INTEGER REFERENCES categories(id),
		user_id INTEGER NOT NULL REFERENCES users(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_categories_user ON categories(user_id)`,
}

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now(),
		last_login TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		transaction_type TEXT NOT NULL CHECK (transaction_type IN ('INCOME', 'EXPENSE')),
		user_id BIGINT NOT NULL REFERENCES users(id),
		UNIQUE (name, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		amount DOUBLE PRECISION NOT NULL CHECK (amount > 0),
		date TEXT DEFAULT to_char(now(), 'YYYY-MM-DD'),
		description TEXT,
		is_recurring BOOLEAN DEFAULT FALSE,
		recurrence_period TEXT DEFAULT 'NONE'
			CHECK (recurrence_period IN ('NONE', 'DAILY', 'WEEKLY', 'MONTHLY', 'YEARLY')),
		transaction_type TEXT NOT NULL CHECK (transaction_type IN ('INCOME', 'EXPENSE')),
		category_id BIGINT REFERENCES categories(id),
		user_id BIGINT NOT NULL REFERENCES users(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_categories_user ON categories(user_id)`,
}

// Init creates the ledger schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	ddl := sqliteDDL
	if s.postgres {
		ddl = postgresDDL
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
