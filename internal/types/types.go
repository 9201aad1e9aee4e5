// Package types holds the shared data model for the natural-language
// command pipeline: intents, candidate and validated operations, execution
// results, and the chat response shape the UI consumes.
package types

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentQuery    Intent = "QUERY"
	IntentMutation Intent = "MUTATION"
	IntentInvalid  Intent = "INVALID"
)

// StatementKind categorizes a SQL statement for routing and validation.
type StatementKind string

const (
	KindUnknown StatementKind = ""
	KindSelect  StatementKind = "SELECT"
	KindInsert  StatementKind = "INSERT"
	KindUpdate  StatementKind = "UPDATE"
	KindDelete  StatementKind = "DELETE"
)

// IsMutation reports whether the kind writes to storage.
func (k StatementKind) IsMutation() bool {
	switch k {
	case KindInsert, KindUpdate, KindDelete:
		return true
	}
	return false
}

// CandidateOperation is the translator's unverified proposal. The statement
// text contains only placeholders; every literal the model produced has
// already been extracted into Params in order. Candidates are owned by the
// request that produced them and discarded after validation.
type CandidateOperation struct {
	Kind   StatementKind
	Table  string
	SQL    string
	Params []any
}

// ValidatedOperation is a candidate that passed every policy rule and has
// been rewritten to scope each table access to UserID.
type ValidatedOperation struct {
	Kind   StatementKind
	Table  string
	SQL    string
	Params []any
	UserID int64
}

// ExecutionResult carries either the rows of a query or the affected-row
// count (plus the new row id for inserts) of a mutation.
type ExecutionResult struct {
	Columns      []string
	Rows         [][]any
	Affected     int64
	LastInsertID int64
}

// Category is a user-owned transaction category, as surfaced to the
// synthesizers' prompt context.
type Category struct {
	ID              int64
	Name            string
	TransactionType string
}

// TablePayload is the tabular data attached to a query response.
type TablePayload struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ChatResponse is the only artifact that crosses back to the UI.
type ChatResponse struct {
	Response string        `json:"response"`
	Success  bool          `json:"success"`
	Data     *TablePayload `json:"data,omitempty"`
	Error    string        `json:"error,omitempty"`
}
