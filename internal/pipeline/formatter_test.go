package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/types"
)

func TestFormatQuery(t *testing.T) {
	f := NewFormatter()

	t.Run("empty result", func(t *testing.T) {
		resp := f.FormatQuery(types.ExecutionResult{Columns: []string{"amount"}})
		assert.True(t, resp.Success)
		assert.Equal(t, "No matching records found.", resp.Response)
		require.NotNil(t, resp.Data)
		assert.Empty(t, resp.Data.Rows)
	})

	t.Run("totals when amount and type present", func(t *testing.T) {
		resp := f.FormatQuery(types.ExecutionResult{
			Columns: []string{"description", "amount", "transaction_type"},
			Rows: [][]any{
				{"salary", 3650.0, "INCOME"},
				{"rent", 1200.0, "EXPENSE"},
				{"groceries", 346.14, "EXPENSE"},
			},
		})
		assert.True(t, resp.Success)
		assert.Equal(t, "Found 3 matching records. Income $3650.00, expenses $1546.14, net $2103.86.", resp.Response)
	})

	t.Run("single row summary", func(t *testing.T) {
		resp := f.FormatQuery(types.ExecutionResult{
			Columns: []string{"name"},
			Rows:    [][]any{{"Food"}},
		})
		assert.Equal(t, "Found 1 matching record.", resp.Response)
	})

	t.Run("cell formatting", func(t *testing.T) {
		when := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
		resp := f.FormatQuery(types.ExecutionResult{
			Columns: []string{"date", "amount", "description", "is_recurring", "notes"},
			Rows:    [][]any{{when, 12.5, []byte("coffee"), true, nil}},
		})
		require.NotNil(t, resp.Data)
		assert.Equal(t, []string{"2026-08-30", "12.50", "coffee", "true", ""}, resp.Data.Rows[0])
	})
}

func TestFormatMutation(t *testing.T) {
	f := NewFormatter()

	t.Run("insert confirmation", func(t *testing.T) {
		op := types.ValidatedOperation{Kind: types.KindInsert, Table: "transactions"}
		resp := f.FormatMutation(op, types.ExecutionResult{Affected: 1, LastInsertID: 42})
		assert.True(t, resp.Success)
		assert.Equal(t, "Done. I've added the new transaction.", resp.Response)
		assert.NotContains(t, resp.Response, "42", "row ids never surface")
	})

	t.Run("update confirmation", func(t *testing.T) {
		op := types.ValidatedOperation{Kind: types.KindUpdate, Table: "categories"}
		resp := f.FormatMutation(op, types.ExecutionResult{Affected: 1})
		assert.Equal(t, "Done. I've updated 1 category.", resp.Response)
	})

	t.Run("update many", func(t *testing.T) {
		op := types.ValidatedOperation{Kind: types.KindUpdate, Table: "transactions"}
		resp := f.FormatMutation(op, types.ExecutionResult{Affected: 3})
		assert.Equal(t, "Done. I've updated 3 transactions.", resp.Response)
	})

	t.Run("update matched nothing", func(t *testing.T) {
		op := types.ValidatedOperation{Kind: types.KindUpdate, Table: "transactions"}
		resp := f.FormatMutation(op, types.ExecutionResult{Affected: 0})
		assert.True(t, resp.Success)
		assert.Equal(t, "Nothing matched, so no transaction was changed.", resp.Response)
	})
}

func TestFailureResponses(t *testing.T) {
	f := NewFormatter()

	for name, resp := range map[string]types.ChatResponse{
		"invalid":    f.InvalidRequest(),
		"synthesis":  f.SynthesisFailed(),
		"validation": f.ValidationFailed(),
		"constraint": f.ExecutionFailed(types.CauseConstraint),
		"transient":  f.ExecutionFailed(types.CauseTransient),
		"unknown":    f.ExecutionFailed(types.CauseUnknown),
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Response)
			assert.Equal(t, resp.Response, resp.Error)
			assert.NotContains(t, resp.Response, "SQL")
			assert.NotContains(t, resp.Response, "sql")
		})
	}
}
