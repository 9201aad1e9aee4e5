package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockStore(t *testing.T, postgres bool) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, postgres, nil), mock
}

func TestQuery(t *testing.T) {
	s, mock := mockStore(t, false)
	mock.ExpectQuery("SELECT amount, description FROM transactions WHERE user_id = ?").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"amount", "description"}).
			AddRow(12.5, "coffee").
			AddRow(1200.0, "rent"))

	cols, rows, err := s.Query(context.Background(),
		"SELECT amount, description FROM transactions WHERE user_id = ?", int64(7))
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "description"}, cols)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{12.5, "coffee"}, rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryError(t *testing.T) {
	s, mock := mockStore(t, false)
	mock.ExpectQuery("SELECT amount FROM transactions").
		WillReturnError(assert.AnError)

	_, _, err := s.Query(context.Background(), "SELECT amount FROM transactions")
	assert.Error(t, err)
}

func TestExecute(t *testing.T) {
	s, mock := mockStore(t, false)
	mock.ExpectExec("INSERT INTO transactions (amount, user_id) VALUES (?, ?)").
		WithArgs(50.0, int64(7)).
		WillReturnResult(sqlmock.NewResult(11, 1))

	affected, lastID, err := s.Execute(context.Background(),
		"INSERT INTO transactions (amount, user_id) VALUES (?, ?)", 50.0, int64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, int64(11), lastID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	sqlite, _ := mockStore(t, false)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?",
		sqlite.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	pg, _ := mockStore(t, true)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2",
		pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
}

func TestPostgresQueryUsesRebinding(t *testing.T) {
	s, mock := mockStore(t, true)
	mock.ExpectQuery("SELECT amount FROM transactions WHERE user_id = $1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(1.0))

	_, rows, err := s.Query(context.Background(),
		"SELECT amount FROM transactions WHERE user_id = ?", int64(7))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCategories(t *testing.T) {
	s, mock := mockStore(t, false)
	mock.ExpectQuery("SELECT id, name, transaction_type FROM categories WHERE user_id = ? ORDER BY name").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "transaction_type"}).
			AddRow(int64(1), "Food", "EXPENSE").
			AddRow(int64(2), "Salary", "INCOME"))

	cats, err := s.ListCategories(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Food", cats[0].Name)
	assert.Equal(t, "INCOME", cats[1].TransactionType)
}
