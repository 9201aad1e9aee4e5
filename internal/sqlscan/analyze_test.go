package sqlscan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTokenize(t *testing.T, sql string) []Token {
	t.Helper()
	tokens, err := Tokenize(sql)
	require.NoError(t, err)
	return tokens
}

func TestTables(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []TableRef
	}{
		{
			name: "plain from",
			sql:  "SELECT * FROM transactions",
			want: []TableRef{{Name: "transactions", Alias: "transactions"}},
		},
		{
			name: "alias with as",
			sql:  "SELECT t.id FROM transactions AS t",
			want: []TableRef{{Name: "transactions", Alias: "t"}},
		},
		{
			name: "bare alias",
			sql:  "SELECT t.id FROM transactions t",
			want: []TableRef{{Name: "transactions", Alias: "t"}},
		},
		{
			name: "join",
			sql:  "SELECT * FROM transactions t JOIN categories c ON c.id = t.category_id",
			want: []TableRef{
				{Name: "transactions", Alias: "t"},
				{Name: "categories", Alias: "c"},
			},
		},
		{
			name: "comma list",
			sql:  "SELECT * FROM transactions t, categories c",
			want: []TableRef{
				{Name: "transactions", Alias: "t"},
				{Name: "categories", Alias: "c"},
			},
		},
		{
			name: "insert target",
			sql:  "INSERT INTO transactions (amount) VALUES (?)",
			want: []TableRef{{Name: "transactions", Alias: "transactions"}},
		},
		{
			name: "update target",
			sql:  "UPDATE transactions SET amount = ?",
			want: []TableRef{{Name: "transactions", Alias: "transactions"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tables(mustTokenize(t, tt.sql))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("table refs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestColumnRefs(t *testing.T) {
	tokens := mustTokenize(t, "SELECT t.amount, sum(amount) AS total FROM transactions t WHERE category_id = ? ORDER BY date")
	tables := Tables(tokens)
	cols := ColumnRefs(tokens, tables)
	assert.ElementsMatch(t, []string{"amount", "amount", "category_id", "date"}, cols)
}

func TestFunctionCalls(t *testing.T) {
	tokens := mustTokenize(t, "SELECT sum(amount), strftime('%Y-%m', date) FROM transactions")
	assert.Equal(t, []string{"sum", "strftime"}, FunctionCalls(tokens))
}

func TestParseInsert(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		tokens := mustTokenize(t, "INSERT INTO transactions (amount, date, description) VALUES (?, ?, NULL)")
		shape, err := ParseInsert(tokens)
		require.NoError(t, err)
		assert.Equal(t, "transactions", shape.Table)
		assert.Equal(t, []string{"amount", "date", "description"}, shape.Columns)
		assert.Equal(t, 0, shape.ParamIndex["amount"])
		assert.Equal(t, 1, shape.ParamIndex["date"])
		assert.Equal(t, -1, shape.ParamIndex["description"])
	})

	bad := map[string]string{
		"no column list":          "INSERT INTO transactions VALUES (?)",
		"subquery value":          "INSERT INTO transactions (amount) VALUES ((SELECT 1))",
		"literal value":           "INSERT INTO transactions (amount) VALUES (10)",
		"more values than cols":   "INSERT INTO transactions (amount) VALUES (?, ?)",
		"fewer values than cols":  "INSERT INTO transactions (amount, date) VALUES (?)",
		"trailing tokens":         "INSERT INTO transactions (amount) VALUES (?) RETURNING id",
		"insert select":           "INSERT INTO transactions (amount) SELECT amount FROM transactions",
	}
	for name, sql := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInsert(mustTokenize(t, sql))
			assert.Error(t, err)
		})
	}
}

func TestParseUpdate(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		tokens := mustTokenize(t, "UPDATE transactions SET amount = ?, description = NULL WHERE id = ?")
		shape, err := ParseUpdate(tokens)
		require.NoError(t, err)
		assert.Equal(t, "transactions", shape.Table)
		assert.Equal(t, 0, shape.Assignments["amount"])
		assert.Equal(t, -1, shape.Assignments["description"])
		assert.Equal(t, tokens[shape.WhereIndex].Upper, "WHERE")
	})

	t.Run("no where clause", func(t *testing.T) {
		tokens := mustTokenize(t, "UPDATE transactions SET amount = ?")
		shape, err := ParseUpdate(tokens)
		require.NoError(t, err)
		assert.Equal(t, -1, shape.WhereIndex)
	})

	bad := map[string]string{
		"aliased target":   "UPDATE transactions t SET amount = ?",
		"literal value":    "UPDATE transactions SET amount = 10",
		"expression value": "UPDATE transactions SET amount = amount + ?",
		"missing set":      "UPDATE transactions WHERE id = ?",
	}
	for name, sql := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUpdate(mustTokenize(t, sql))
			assert.Error(t, err)
		})
	}
}
