// Package pipeline wires the natural-language command flow: candidate
// validation, execution against storage, result formatting, and the
// orchestrating state machine. The validator is the trust boundary: a
// candidate operation is adversarial input until it leaves Validate.
package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/schema"
	"fintrack/internal/sqlscan"
	"fintrack/internal/types"
)

// Validator statically checks candidate operations against the schema
// policy and rewrites them so every table access is scoped to one user.
type Validator struct {
	policy *schema.Policy
}

// NewValidator creates a validator over the loaded policy.
func NewValidator(policy *schema.Policy) *Validator {
	return &Validator{policy: policy}
}

// Validate enforces, in order: statement kind matches intent, tables and
// columns are allow-listed, no raw literal survives in the statement text,
// required write columns are present and bounded, and the operation is
// rewritten to carry a user_id predicate on every table access. The
// returned operation is the only thing the executor will ever run.
func (v *Validator) Validate(candidate types.CandidateOperation, intent types.Intent, userID int64) (types.ValidatedOperation, error) {
	stmts, err := sqlscan.Statements(candidate.SQL)
	if err != nil || len(stmts) != 1 {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleMultiStatement, Detail: "exactly one statement required"}
	}
	tokens, err := sqlscan.Tokenize(stmts[0])
	if err != nil {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleMalformed, Detail: err.Error()}
	}

	// (a) statement kind matches intent, no nested or compound queries
	kind := types.StatementKind(sqlscan.Kind(tokens))
	if err := checkKind(kind, intent); err != nil {
		return types.ValidatedOperation{}, err
	}
	if kind != candidate.Kind {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleStatementKind, Detail: "statement kind does not match candidate"}
	}
	selects := sqlscan.CountKeyword(tokens, "SELECT")
	if (kind == types.KindSelect && selects != 1) || (kind != types.KindSelect && selects != 0) {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleStatementKind, Detail: "nested or compound queries are not permitted"}
	}

	// (b) every referenced table is allow-listed
	tables := sqlscan.Tables(tokens)
	if len(tables) == 0 {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleTableAllowList, Detail: "no table referenced"}
	}
	for _, ref := range tables {
		if _, ok := v.policy.Table(ref.Name); !ok {
			return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleTableAllowList, Detail: fmt.Sprintf("table %s is not allow-listed", ref.Name)}
		}
	}
	if kind.IsMutation() && len(tables) != 1 {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleTableAllowList, Detail: "a write must target exactly one table"}
	}

	// (c) every referenced column and function is allow-listed
	if err := v.checkColumns(tokens, tables); err != nil {
		return types.ValidatedOperation{}, err
	}

	// (d) no raw literal concatenated into the statement body
	if sqlscan.HasLiteral(tokens) {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleRawLiteral, Detail: "literal values must be bound parameters"}
	}
	if sqlscan.Placeholders(tokens) != len(candidate.Params) {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleMalformed, Detail: "parameter count does not match placeholders"}
	}

	params := append([]any(nil), candidate.Params...)

	// (e) + (f): shape checks and the user-scope rewrite
	switch kind {
	case types.KindInsert:
		return v.validateInsert(tokens, params, userID)
	case types.KindUpdate:
		return v.validateUpdate(tokens, params, userID)
	default:
		return v.validateSelect(tokens, params, tables, userID)
	}
}

func checkKind(kind types.StatementKind, intent types.Intent) error {
	switch intent {
	case types.IntentQuery:
		if kind != types.KindSelect {
			return &types.ValidationError{Rule: types.RuleStatementKind, Detail: "query intent requires a SELECT"}
		}
	case types.IntentMutation:
		if kind != types.KindInsert && kind != types.KindUpdate {
			return &types.ValidationError{Rule: types.RuleStatementKind, Detail: "mutation intent requires INSERT or UPDATE"}
		}
	default:
		return &types.ValidationError{Rule: types.RuleStatementKind, Detail: "no executable intent"}
	}
	return nil
}

func (v *Validator) checkColumns(tokens []sqlscan.Token, tables []sqlscan.TableRef) error {
	for _, fn := range sqlscan.FunctionCalls(tokens) {
		if !v.policy.AllowsFunction(fn) {
			return &types.ValidationError{Rule: types.RuleColumnAllowList, Detail: fmt.Sprintf("function %s is not permitted", fn)}
		}
	}
	for _, col := range sqlscan.ColumnRefs(tokens, tables) {
		allowed := false
		for _, ref := range tables {
			if t, ok := v.policy.Table(ref.Name); ok && t.HasColumn(col) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &types.ValidationError{Rule: types.RuleColumnAllowList, Detail: fmt.Sprintf("column %s is not allow-listed", col)}
		}
	}
	return nil
}

// validateInsert canonicalizes the statement: the insert is rebuilt from
// its parsed shape with user_id appended, so nothing the translator wrote
// survives except columns and bound values that passed the policy.
func (v *Validator) validateInsert(tokens []sqlscan.Token, params []any, userID int64) (types.ValidatedOperation, error) {
	shape, err := sqlscan.ParseInsert(tokens)
	if err != nil {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleMalformed, Detail: err.Error()}
	}
	table, ok := v.policy.Table(shape.Table)
	if !ok || !table.Writable {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleTableAllowList, Detail: fmt.Sprintf("table %s is not writable", shape.Table)}
	}

	for _, required := range table.RequiredInsert {
		idx, present := shape.ParamIndex[required]
		if !present || idx < 0 {
			return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleRequiredColumns, Detail: fmt.Sprintf("column %s is required", required)}
		}
	}
	if err := v.checkBoundValues(table, shape.ParamIndex, params); err != nil {
		return types.ValidatedOperation{}, err
	}

	// Rebuild: columns in original order minus user_id, then user_id last.
	var cols []string
	var values []string
	var outParams []any
	for _, col := range shape.Columns {
		if strings.EqualFold(col, "user_id") {
			if idx := shape.ParamIndex[col]; idx < 0 {
				return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleUserScope, Detail: "user_id cannot be NULL"}
			}
			continue // re-added below with the authenticated identity
		}
		cols = append(cols, col)
		if idx := shape.ParamIndex[col]; idx >= 0 {
			values = append(values, "?")
			outParams = append(outParams, params[idx])
		} else {
			values = append(values, "NULL")
		}
	}
	cols = append(cols, "user_id")
	values = append(values, "?")
	outParams = append(outParams, userID)

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Name, strings.Join(cols, ", "), strings.Join(values, ", "))
	return types.ValidatedOperation{
		Kind:   types.KindInsert,
		Table:  table.Name,
		SQL:    sql,
		Params: outParams,
		UserID: userID,
	}, nil
}

func (v *Validator) validateUpdate(tokens []sqlscan.Token, params []any, userID int64) (types.ValidatedOperation, error) {
	shape, err := sqlscan.ParseUpdate(tokens)
	if err != nil {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleMalformed, Detail: err.Error()}
	}
	table, ok := v.policy.Table(shape.Table)
	if !ok || !table.Writable {
		return types.ValidatedOperation{}, &types.ValidationError{Rule: types.RuleTableAllowList, Detail: fmt.Sprintf("table %s is not writable", shape.Table)}
	}
	if err := v.checkBoundValues(table, shape.Assignments, params); err != nil {
		return types.ValidatedOperation{}, err
	}

	refs := []sqlscan.TableRef{{Name: table.Name, Alias: table.Name}}
	rewritten, outParams := injectUserScope(tokens, params, refs, userID)
	return types.ValidatedOperation{
		Kind:   types.KindUpdate,
		Table:  table.Name,
		SQL:    sqlscan.Render(rewritten),
		Params: outParams,
		UserID: userID,
	}, nil
}

func (v *Validator) validateSelect(tokens []sqlscan.Token, params []any, tables []sqlscan.TableRef, userID int64) (types.ValidatedOperation, error) {
	rewritten, outParams := injectUserScope(tokens, params, tables, userID)
	return types.ValidatedOperation{
		Kind:   types.KindSelect,
		Table:  tables[0].Name,
		SQL:    sqlscan.Render(rewritten),
		Params: outParams,
		UserID: userID,
	}, nil
}

// checkBoundValues enforces the amount bounds and enumerated value domains
// on write parameters, normalizing enum spellings to their canonical form.
func (v *Validator) checkBoundValues(table *schema.Table, paramIndex map[string]int, params []any) error {
	for col, idx := range paramIndex {
		if idx < 0 || idx >= len(params) {
			continue
		}
		if strings.EqualFold(col, "amount") {
			amount, err := toDecimal(params[idx])
			if err != nil {
				return &types.ValidationError{Rule: types.RuleAmountBounds, Detail: "amount must be a number"}
			}
			if !amount.IsPositive() || amount.GreaterThan(v.policy.MaxAmount) {
				return &types.ValidationError{Rule: types.RuleAmountBounds, Detail: "amount must be positive and within bounds"}
			}
			continue
		}
		if domain, ok := table.EnumValues(col); ok {
			raw, isString := params[idx].(string)
			if !isString {
				return &types.ValidationError{Rule: types.RuleEnumDomain, Detail: fmt.Sprintf("%s must be one of %s", col, strings.Join(domain, ", "))}
			}
			canonical := strings.ToUpper(strings.TrimSpace(raw))
			found := false
			for _, val := range domain {
				if canonical == val {
					found = true
					break
				}
			}
			if !found {
				return &types.ValidationError{Rule: types.RuleEnumDomain, Detail: fmt.Sprintf("%s must be one of %s", col, strings.Join(domain, ", "))}
			}
			params[idx] = canonical
		}
	}
	return nil
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch n := value.(type) {
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, fmt.Errorf("amount is not finite")
		}
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("amount is not numeric")
	}
}

// injectUserScope rewrites a statement so every table access carries a
// user_id predicate bound to the authenticated user. Existing
// `user_id = ?` bindings are forced to the same identity no matter what
// value the translator proposed.
func injectUserScope(tokens []sqlscan.Token, params []any, tables []sqlscan.TableRef, userID int64) ([]sqlscan.Token, []any) {
	whereIdx, predEnd := whereRegion(tokens)

	covered := coveredAliases(tokens, whereIdx, predEnd, tables)
	var missing []sqlscan.TableRef
	for _, ref := range tables {
		if _, ok := covered[strings.ToLower(ref.Alias)]; !ok {
			missing = append(missing, ref)
		}
	}

	out := tokens
	if len(missing) > 0 {
		if whereIdx == -1 {
			// no WHERE clause: insert one before any trailing clauses
			insertAt := tailClauseIndex(tokens)
			var clause []sqlscan.Token
			clause = append(clause, kw("WHERE"))
			clause = append(clause, scopePredicates(missing, false)...)
			out = spliceTokens(tokens, insertAt, insertAt, clause)
		} else {
			// wrap the existing predicate and AND the scopes on
			var clause []sqlscan.Token
			clause = append(clause, sym("("))
			clause = append(clause, tokens[whereIdx+1:predEnd]...)
			clause = append(clause, sym(")"))
			clause = append(clause, scopePredicates(missing, true)...)
			out = spliceTokens(tokens, whereIdx+1, predEnd, clause)
		}
	}

	return out, rebindParams(out, params, userID)
}

func kw(text string) sqlscan.Token {
	return sqlscan.Token{Type: sqlscan.TokenKeyword, Text: text, Upper: strings.ToUpper(text)}
}

func sym(text string) sqlscan.Token {
	return sqlscan.Token{Type: sqlscan.TokenSymbol, Text: text, Upper: text}
}

func ident(text string) sqlscan.Token {
	return sqlscan.Token{Type: sqlscan.TokenIdent, Text: text, Upper: strings.ToUpper(text)}
}

// scopePredicates renders `alias.user_id = ?` terms joined by AND. When
// leadingAnd is set the first term is also preceded by AND.
func scopePredicates(refs []sqlscan.TableRef, leadingAnd bool) []sqlscan.Token {
	var out []sqlscan.Token
	for i, ref := range refs {
		if i > 0 || leadingAnd {
			out = append(out, kw("AND"))
		}
		out = append(out,
			ident(ref.Alias), sym("."), ident("user_id"), sym("="),
			sqlscan.Token{Type: sqlscan.TokenPlaceholder, Text: "?", Injected: true},
		)
	}
	return out
}

// whereRegion locates the top-level WHERE keyword and the end of its
// predicate (the next top-level GROUP/ORDER/LIMIT/OFFSET, or end of input).
func whereRegion(tokens []sqlscan.Token) (int, int) {
	depth := 0
	whereIdx := -1
	predEnd := len(tokens)
	for i, t := range tokens {
		switch t.Text {
		case "(":
			depth++
		case ")":
			depth--
		}
		if depth != 0 || t.Type != sqlscan.TokenKeyword {
			continue
		}
		switch t.Upper {
		case "WHERE":
			if whereIdx == -1 {
				whereIdx = i
			}
		case "GROUP", "ORDER", "LIMIT", "OFFSET":
			if whereIdx != -1 && i > whereIdx && i < predEnd {
				predEnd = i
			}
		}
	}
	if whereIdx == -1 {
		return -1, -1
	}
	return whereIdx, predEnd
}

// tailClauseIndex finds where a WHERE clause would be inserted in a
// statement that has none: before the first top-level GROUP/ORDER/LIMIT/
// OFFSET, or at the end (skipping a trailing semicolon).
func tailClauseIndex(tokens []sqlscan.Token) int {
	depth := 0
	for i, t := range tokens {
		switch t.Text {
		case "(":
			depth++
		case ")":
			depth--
		}
		if depth == 0 && t.Type == sqlscan.TokenKeyword {
			switch t.Upper {
			case "GROUP", "ORDER", "LIMIT", "OFFSET":
				return i
			}
		}
	}
	end := len(tokens)
	for end > 0 && tokens[end-1].Text == ";" {
		end--
	}
	return end
}

// coveredAliases reports which table aliases already carry a
// `user_id = ?` equality as a top-level conjunct of the WHERE predicate.
// A parenthesized or OR-joined equality does not count: the predicate as a
// whole must imply the scope, and a top-level OR breaks that implication,
// so its presence voids all coverage and forces injection.
func coveredAliases(tokens []sqlscan.Token, whereIdx, predEnd int, tables []sqlscan.TableRef) map[string]struct{} {
	covered := make(map[string]struct{})
	if whereIdx == -1 {
		return covered
	}
	depth := 0
	for i := whereIdx + 1; i < predEnd; i++ {
		t := tokens[i]
		switch t.Text {
		case "(":
			depth++
			continue
		case ")":
			depth--
			continue
		}
		if depth == 0 && t.Type == sqlscan.TokenKeyword && t.Upper == "OR" {
			return make(map[string]struct{})
		}
		if depth != 0 || t.Type != sqlscan.TokenIdent || t.Upper != "USER_ID" {
			continue
		}
		if i+2 >= len(tokens) || tokens[i+1].Text != "=" || tokens[i+2].Type != sqlscan.TokenPlaceholder {
			continue
		}
		if i >= 2 && tokens[i-1].Text == "." && tokens[i-2].Type == sqlscan.TokenIdent {
			covered[strings.ToLower(tokens[i-2].Text)] = struct{}{}
			continue
		}
		// unqualified user_id only scopes an unambiguous single table
		if len(tables) == 1 {
			covered[strings.ToLower(tables[0].Alias)] = struct{}{}
		}
	}
	return covered
}

func spliceTokens(tokens []sqlscan.Token, from, to int, replacement []sqlscan.Token) []sqlscan.Token {
	out := make([]sqlscan.Token, 0, len(tokens)-(to-from)+len(replacement))
	out = append(out, tokens[:from]...)
	out = append(out, replacement...)
	out = append(out, tokens[to:]...)
	return out
}

// rebindParams rebuilds the parameter list for the final token stream:
// injected placeholders take the authenticated user id, and any surviving
// placeholder that binds a user_id equality is forced to it as well.
func rebindParams(tokens []sqlscan.Token, original []any, userID int64) []any {
	out := make([]any, 0, len(original)+2)
	next := 0
	for i, t := range tokens {
		if t.Type != sqlscan.TokenPlaceholder {
			continue
		}
		if t.Injected {
			out = append(out, userID)
			continue
		}
		value := original[next]
		next++
		if bindsUserID(tokens, i) {
			value = userID
		}
		out = append(out, value)
	}
	return out
}

// bindsUserID reports whether the placeholder at idx is the right-hand
// side of a user_id equality.
func bindsUserID(tokens []sqlscan.Token, idx int) bool {
	if idx >= 2 && tokens[idx-1].Text == "=" {
		if tokens[idx-2].Type == sqlscan.TokenIdent && tokens[idx-2].Upper == "USER_ID" {
			return true
		}
	}
	if idx+2 < len(tokens) && tokens[idx+1].Text == "=" {
		if tokens[idx+2].Type == sqlscan.TokenIdent && tokens[idx+2].Upper == "USER_ID" {
			return true
		}
	}
	return false
}
