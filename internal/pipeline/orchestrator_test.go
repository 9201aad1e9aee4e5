package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fintrack/internal/perception"
	"fintrack/internal/schema"
	"fintrack/internal/session"
	"fintrack/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubClassifier struct {
	result perception.Classification
}

func (s *stubClassifier) Classify(context.Context, string) perception.Classification {
	return s.result
}

type stubSynthesizer struct {
	cand types.CandidateOperation
	err  error
}

func (s *stubSynthesizer) Synthesize(context.Context, string, int64) (types.CandidateOperation, error) {
	return s.cand, s.err
}

func newOrchestrator(t *testing.T, intent types.Intent, synth Synthesizer, storage Storage) *Orchestrator {
	t.Helper()
	policy, err := schema.Load()
	require.NoError(t, err)
	return NewOrchestrator(Deps{
		Classifier: &stubClassifier{result: perception.Classification{Intent: intent}},
		Queries:    synth,
		Mutations:  synth,
		Validator:  NewValidator(policy),
		Executor:   fastExecutor(storage),
		Sessions:   session.NewRegistry(0),
	})
}

func TestHandleQueryRoundTrip(t *testing.T) {
	synth := &stubSynthesizer{cand: types.CandidateOperation{
		Kind:   types.KindSelect,
		Table:  "transactions",
		SQL:    "SELECT amount FROM transactions WHERE description = ? LIMIT ?",
		Params: []any{"rent", int64(50)},
	}}
	storage := &fakeStorage{}
	o := newOrchestrator(t, types.IntentQuery, synth, storage)

	resp := o.Handle(context.Background(), "show rent payments", 7)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, []string{"amount"}, resp.Data.Columns)

	// the executed statement carries the injected user scope
	assert.Contains(t, storage.lastSQL, "transactions.user_id = ?")
	assert.Equal(t, []any{"rent", int64(7), int64(50)}, storage.lastArgs)
}

func TestHandleMutationRoundTrip(t *testing.T) {
	synth := &stubSynthesizer{cand: types.CandidateOperation{
		Kind:   types.KindInsert,
		Table:  "transactions",
		SQL:    "INSERT INTO transactions (amount, date, transaction_type, category_id) VALUES (?, ?, ?, ?)",
		Params: []any{50.0, "2026-08-30", "EXPENSE", int64(3)},
	}}
	storage := &fakeStorage{}
	o := newOrchestrator(t, types.IntentMutation, synth, storage)

	resp := o.Handle(context.Background(), "add a $50 dinner", 7)
	assert.True(t, resp.Success)
	assert.Equal(t, "Done. I've added the new transaction.", resp.Response)
	assert.Equal(t, []any{50.0, "2026-08-30", "EXPENSE", int64(3), int64(7)}, storage.lastArgs)
}

func TestHandleInvalidIntent(t *testing.T) {
	o := newOrchestrator(t, types.IntentInvalid, &stubSynthesizer{}, &fakeStorage{})
	resp := o.Handle(context.Background(), "tell me a joke", 7)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Response)
}

func TestHandleSynthesisFailure(t *testing.T) {
	synth := &stubSynthesizer{err: &types.SynthesisError{Reason: "no table referenced"}}
	storage := &fakeStorage{}
	o := newOrchestrator(t, types.IntentQuery, synth, storage)

	resp := o.Handle(context.Background(), "do something odd", 7)
	assert.False(t, resp.Success)
	assert.Zero(t, storage.queryCalls, "nothing reaches storage")
}

func TestHandleValidationFailure(t *testing.T) {
	synth := &stubSynthesizer{cand: types.CandidateOperation{
		Kind:  types.KindSelect,
		Table: "users",
		SQL:   "SELECT * FROM users",
	}}
	storage := &fakeStorage{}
	o := newOrchestrator(t, types.IntentQuery, synth, storage)

	resp := o.Handle(context.Background(), "list all accounts", 7)
	assert.False(t, resp.Success)
	assert.Zero(t, storage.queryCalls)
	assert.NotContains(t, resp.Response, "users", "internals never leak")
}

func TestHandleExecutionFailure(t *testing.T) {
	synth := &stubSynthesizer{cand: types.CandidateOperation{
		Kind:   types.KindInsert,
		Table:  "transactions",
		SQL:    "INSERT INTO transactions (amount, date, transaction_type, category_id) VALUES (?, ?, ?, ?)",
		Params: []any{50.0, "2026-08-30", "EXPENSE", int64(99)},
	}}
	storage := &fakeStorage{errs: []error{errors.New("FOREIGN KEY constraint failed")}}
	o := newOrchestrator(t, types.IntentMutation, synth, storage)

	resp := o.Handle(context.Background(), "add dinner", 7)
	assert.False(t, resp.Success)
	assert.NotContains(t, resp.Response, "FOREIGN KEY")
}

func TestHandleRecordsHistory(t *testing.T) {
	storage := &fakeStorage{}
	synth := &stubSynthesizer{cand: types.CandidateOperation{
		Kind:   types.KindSelect,
		Table:  "transactions",
		SQL:    "SELECT amount FROM transactions LIMIT ?",
		Params: []any{int64(50)},
	}}
	o := newOrchestrator(t, types.IntentQuery, synth, storage)

	o.Handle(context.Background(), "first", 7)
	o.Handle(context.Background(), "second", 7)

	got := o.History(7, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, "second", got[1].Message)
	assert.True(t, got[1].Success)
}

func TestResetIsIdempotent(t *testing.T) {
	o := newOrchestrator(t, types.IntentInvalid, &stubSynthesizer{}, &fakeStorage{})
	o.Handle(context.Background(), "hello", 7)

	first := o.Reset(context.Background(), 7)
	assert.True(t, first.Success)
	assert.Empty(t, o.History(7, 0))

	second := o.Reset(context.Background(), 7)
	assert.Equal(t, first, second)
	assert.Empty(t, o.History(7, 0))
}
