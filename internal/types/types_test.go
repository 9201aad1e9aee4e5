package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementKindIsMutation(t *testing.T) {
	assert.False(t, KindSelect.IsMutation())
	assert.True(t, KindInsert.IsMutation())
	assert.True(t, KindUpdate.IsMutation())
	assert.True(t, KindDelete.IsMutation())
	assert.False(t, KindUnknown.IsMutation())
}

func TestChatResponseJSON(t *testing.T) {
	t.Run("data omitted when absent", func(t *testing.T) {
		raw, err := json.Marshal(ChatResponse{Response: "ok", Success: true})
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "data")
		assert.NotContains(t, string(raw), "error")
	})

	t.Run("payload round trip", func(t *testing.T) {
		raw, err := json.Marshal(ChatResponse{
			Response: "Found 1 matching record.",
			Success:  true,
			Data: &TablePayload{
				Columns: []string{"amount"},
				Rows:    [][]string{{"12.50"}},
			},
		})
		require.NoError(t, err)

		var got ChatResponse
		require.NoError(t, json.Unmarshal(raw, &got))
		require.NotNil(t, got.Data)
		assert.Equal(t, "12.50", got.Data.Rows[0][0])
	})
}

func TestErrorWrapping(t *testing.T) {
	inner := assert.AnError
	err := &ExecutionError{Cause: CauseTransient, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "TRANSIENT")

	valErr := &ValidationError{Rule: RuleRawLiteral, Detail: "literal values must be bound parameters"}
	assert.Contains(t, valErr.Error(), string(RuleRawLiteral))
}
