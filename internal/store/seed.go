package store

import (
	"context"
	"fmt"
	"time"
)

type seedCategory struct {
	name  string
	ttype string
}

var defaultCategories = []seedCategory{
	{"Salary", "INCOME"},
	{"Freelance", "INCOME"},
	{"Other Income", "INCOME"},
	{"Groceries", "EXPENSE"},
	{"Rent", "EXPENSE"},
	{"Utilities", "EXPENSE"},
	{"Transport", "EXPENSE"},
	{"Dining", "EXPENSE"},
	{"Entertainment", "EXPENSE"},
	{"Other", "EXPENSE"},
}

type seedTransaction struct {
	amount      float64
	daysAgo     int
	description string
	ttype       string
	category    string
}

var sampleTransactions = []seedTransaction{
	{3200.00, 28, "Monthly salary", "INCOME", "Salary"},
	{450.00, 21, "Website gig", "INCOME", "Freelance"},
	{1200.00, 27, "Rent", "EXPENSE", "Rent"},
	{84.35, 14, "Weekly groceries", "EXPENSE", "Groceries"},
	{92.10, 7, "Weekly groceries", "EXPENSE", "Groceries"},
	{45.00, 10, "Electricity bill", "EXPENSE", "Utilities"},
	{18.50, 5, "Taxi", "EXPENSE", "Transport"},
	{62.80, 3, "Dinner out", "EXPENSE", "Dining"},
	{15.99, 2, "Streaming subscription", "EXPENSE", "Entertainment"},
	{27.40, 1, "Lunch", "EXPENSE", "Dining"},
}

// EnsureUser inserts a demo user if the id is free and returns its id.
func (s *Store) EnsureUser(ctx context.Context, email, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id FROM users WHERE username = ?"), username).Scan(&id)
	if err == nil {
		return id, nil
	}
	affected, lastID, err := s.Execute(ctx,
		"INSERT INTO users (email, username, password_hash) VALUES (?, ?, ?)",
		email, username, "external-auth")
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	if affected != 1 {
		return 0, fmt.Errorf("ensure user: unexpected affected count %d", affected)
	}
	if lastID != 0 {
		return lastID, nil
	}
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT id FROM users WHERE username = ?"), username).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	return id, nil
}

// Seed populates default categories and a month of sample transactions for
// the user. Idempotent for categories; transactions are only added when the
// user has none.
func (s *Store) Seed(ctx context.Context, userID int64) error {
	for _, c := range defaultCategories {
		var exists int
		err := s.db.QueryRowContext(ctx,
			s.rebind("SELECT count(*) FROM categories WHERE name = ? AND user_id = ?"), c.name, userID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
		if exists > 0 {
			continue
		}
		if _, _, err := s.Execute(ctx,
			"INSERT INTO categories (name, transaction_type, user_id) VALUES (?, ?, ?)",
			c.name, c.ttype, userID); err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
	}

	var txCount int
	if err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT count(*) FROM transactions WHERE user_id = ?"), userID).Scan(&txCount); err != nil {
		return fmt.Errorf("seed transactions: %w", err)
	}
	if txCount > 0 {
		return nil
	}

	now := time.Now()
	for _, t := range sampleTransactions {
		var categoryID int64
		err := s.db.QueryRowContext(ctx,
			s.rebind("SELECT id FROM categories WHERE name = ? AND user_id = ?"), t.category, userID).Scan(&categoryID)
		if err != nil {
			return fmt.Errorf("seed transactions: %w", err)
		}
		date := now.AddDate(0, 0, -t.daysAgo).Format("2006-01-02")
		if _, _, err := s.Execute(ctx,
			`INSERT INTO transactions (amount, date, description, is_recurring, recurrence_period, transaction_type, category_id, user_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.amount, date, t.description, false, "NONE", t.ttype, categoryID, userID); err != nil {
			return fmt.Errorf("seed transactions: %w", err)
		}
	}
	return nil
}
