package types

import "fmt"

// ValidationRule identifies the specific policy rule an operation violated.
type ValidationRule string

const (
	RuleStatementKind   ValidationRule = "statement_kind"
	RuleMultiStatement  ValidationRule = "multi_statement"
	RuleTableAllowList  ValidationRule = "table_allow_list"
	RuleColumnAllowList ValidationRule = "column_allow_list"
	RuleRawLiteral      ValidationRule = "raw_literal"
	RuleRequiredColumns ValidationRule = "required_columns"
	RuleAmountBounds    ValidationRule = "amount_bounds"
	RuleEnumDomain      ValidationRule = "enum_domain"
	RuleUserScope       ValidationRule = "user_scope"
	RuleMalformed       ValidationRule = "malformed_statement"
)

// SynthesisError means the translator produced an out-of-policy proposal.
// It is recovered locally and surfaced as a generic response.
type SynthesisError struct {
	Reason string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis rejected: %s", e.Reason)
}

// ValidationError carries the violated rule. Operations that fail
// validation are never executed.
type ValidationError struct {
	Rule   ValidationRule
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Detail)
}

// ExecutionCause is the coarse-grained classification of a storage failure.
type ExecutionCause string

const (
	CauseConstraint ExecutionCause = "CONSTRAINT"
	CauseTransient  ExecutionCause = "TRANSIENT"
	CauseUnknown    ExecutionCause = "UNKNOWN"
)

// ExecutionError wraps a storage-layer failure. Only CauseTransient is
// retryable.
type ExecutionError struct {
	Cause ExecutionCause
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed (%s): %v", e.Cause, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
