package sqlscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
		count   int
	}{
		{
			name:  "simple select",
			sql:   "SELECT id FROM transactions",
			count: 4,
		},
		{
			name:  "string with escaped quote",
			sql:   "SELECT 'it''s'",
			count: 2,
		},
		{
			name:  "two rune operator stays whole",
			sql:   "a <= b",
			count: 3,
		},
		{
			name:    "line comment rejected",
			sql:     "SELECT 1 -- drop everything",
			wantErr: true,
		},
		{
			name:    "block comment rejected",
			sql:     "SELECT /* hidden */ 1",
			wantErr: true,
		},
		{
			name:    "unterminated string",
			sql:     "SELECT 'oops",
			wantErr: true,
		},
		{
			name:    "unexpected character",
			sql:     "SELECT $$",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.sql)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, tokens, tt.count)
		})
	}
}

func TestTokenizeStringContents(t *testing.T) {
	tokens, err := Tokenize("WHERE name = 'it''s fine'")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, TokenString, tokens[3].Type)
	assert.Equal(t, "it's fine", tokens[3].Text)
}

func TestStatements(t *testing.T) {
	t.Run("trailing semicolon is one statement", func(t *testing.T) {
		parts, err := Statements("SELECT 1;")
		require.NoError(t, err)
		assert.Len(t, parts, 1)
	})
	t.Run("two statements split", func(t *testing.T) {
		parts, err := Statements("SELECT 1; DELETE FROM transactions")
		require.NoError(t, err)
		assert.Len(t, parts, 2)
	})
	t.Run("semicolon inside string does not split", func(t *testing.T) {
		parts, err := Statements("SELECT 'a;b'")
		require.NoError(t, err)
		assert.Len(t, parts, 1)
	})
}

func TestKind(t *testing.T) {
	for sql, want := range map[string]string{
		"SELECT 1":                       "SELECT",
		"INSERT INTO t (a) VALUES (?)":   "INSERT",
		"UPDATE t SET a = ?":             "UPDATE",
		"DELETE FROM t":                  "DELETE",
		"WITH x AS (SELECT 1) SELECT 1":  "",
		"VALUES (1)":                     "",
	} {
		tokens, err := Tokenize(sql)
		require.NoError(t, err)
		assert.Equal(t, want, Kind(tokens), sql)
	}
}

func TestParameterize(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		render string
		params []any
	}{
		{
			name:   "string and integer",
			sql:    "SELECT * FROM transactions WHERE description = 'rent' AND amount > 100",
			render: "SELECT * FROM transactions WHERE description = ? AND amount > ?",
			params: []any{"rent", int64(100)},
		},
		{
			name:   "float keeps precision",
			sql:    "WHERE amount = 12.50",
			render: "WHERE amount = ?",
			params: []any{12.50},
		},
		{
			name:   "unary minus folds into value",
			sql:    "WHERE amount > -5",
			render: "WHERE amount > ?",
			params: []any{int64(-5)},
		},
		{
			name:   "binary minus is preserved",
			sql:    "WHERE a - 5 > 0",
			render: "WHERE a - ? > ?",
			params: []any{int64(5), int64(0)},
		},
		{
			name:   "booleans become parameters",
			sql:    "WHERE is_recurring = TRUE",
			render: "WHERE is_recurring = ?",
			params: []any{true},
		},
		{
			name:   "existing placeholders survive",
			sql:    "WHERE user_id = ? AND amount > 10",
			render: "WHERE user_id = ? AND amount > ?",
			params: []any{int64(10)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.sql)
			require.NoError(t, err)
			out, params, err := Parameterize(tokens)
			require.NoError(t, err)
			assert.Equal(t, tt.render, Render(out))
			assert.Equal(t, tt.params, params)
			assert.False(t, HasLiteral(out))
		})
	}
}

func TestHasLiteral(t *testing.T) {
	tokens, err := Tokenize("WHERE amount > 100")
	require.NoError(t, err)
	assert.True(t, HasLiteral(tokens))

	tokens, err = Tokenize("WHERE amount > ?")
	require.NoError(t, err)
	assert.False(t, HasLiteral(tokens))
}

func TestRenderSpacing(t *testing.T) {
	tokens, err := Tokenize("SELECT sum( amount ) , count( * ) FROM t WHERE t . id = ?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT sum(amount), count(*) FROM t WHERE t.id = ?", Render(tokens))
}

func TestRenderQuotesStrings(t *testing.T) {
	tokens := []Token{
		{Type: TokenIdent, Text: "name", Upper: "NAME"},
		{Type: TokenSymbol, Text: "=", Upper: "="},
		{Type: TokenString, Text: "it's"},
	}
	assert.Equal(t, "name = 'it''s'", Render(tokens))
}
