// Package store is the storage collaborator: parameterized query/execute
// primitives over the relational ledger schema. SQLite (modernc driver) is
// the default; a postgres:// DSN switches to pgx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"fintrack/internal/logging"
	"fintrack/internal/types"
)

// Store wraps a database handle behind positional-placeholder primitives.
// Statement text always uses `?`; the store rebinds for Postgres.
type Store struct {
	db       *sql.DB
	postgres bool
	log      *zap.Logger
}

// Open connects to the database named by dsn. File paths open SQLite with
// the pragmas tuned for concurrent single-writer use.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	log = logging.OrNop(log)
	s := &Store{log: log}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.db = db
		s.postgres = true
		return s, nil
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		log.Debug("failed to enable sqlite foreign keys", zap.Error(err))
	}
	s.db = db
	return s, nil
}

// NewWithDB wraps an existing handle; used by tests with sqlmock.
func NewWithDB(db *sql.DB, postgres bool, log *zap.Logger) *Store {
	return &Store{db: db, postgres: postgres, log: logging.OrNop(log)}
}

// Close releases the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// rebind converts `?` placeholders to `$N` for Postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Query runs a SELECT and materializes every row as a column-ordered tuple.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return cols, out, nil
}

// Execute runs a mutation and returns the affected-row count plus, where
// the driver supports it, the newly assigned row id.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (int64, int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, 0, fmt.Errorf("execute: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("rows affected: %w", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		// pgx does not implement LastInsertId; the count still stands.
		lastID = 0
	}
	return affected, lastID, nil
}

// ListCategories returns the user's categories ordered by name, for the
// synthesizers' prompt context.
func (s *Store) ListCategories(ctx context.Context, userID int64) ([]types.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT id, name, transaction_type FROM categories WHERE user_id = ? ORDER BY name"), userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []types.Category
	for rows.Next() {
		var c types.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.TransactionType); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
