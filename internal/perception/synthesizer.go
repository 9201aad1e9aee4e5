package perception

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fintrack/internal/logging"
	"fintrack/internal/schema"
	"fintrack/internal/sqlscan"
	"fintrack/internal/types"
)

// CategoryLister supplies the user's categories for prompt context. The
// store implements it; synthesis itself never writes.
type CategoryLister interface {
	ListCategories(ctx context.Context, userID int64) ([]types.Category, error)
}

// aggregates whose presence means a query already has bounded cardinality.
var aggregateFunctions = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "total": {},
}

// QuerySynthesizer turns a read-intent message into a candidate SELECT.
type QuerySynthesizer struct {
	llm        CompletionClient
	policy     *schema.Policy
	categories CategoryLister
	log        *zap.Logger
}

// NewQuerySynthesizer constructs the read specialization.
func NewQuerySynthesizer(llm CompletionClient, policy *schema.Policy, categories CategoryLister, log *zap.Logger) *QuerySynthesizer {
	return &QuerySynthesizer{llm: llm, policy: policy, categories: categories, log: logging.OrNop(log)}
}

// MutationSynthesizer turns a write-intent message into a candidate
// INSERT or UPDATE.
type MutationSynthesizer struct {
	llm        CompletionClient
	policy     *schema.Policy
	categories CategoryLister
	log        *zap.Logger
}

// NewMutationSynthesizer constructs the write specialization.
func NewMutationSynthesizer(llm CompletionClient, policy *schema.Policy, categories CategoryLister, log *zap.Logger) *MutationSynthesizer {
	return &MutationSynthesizer{llm: llm, policy: policy, categories: categories, log: logging.OrNop(log)}
}

// Synthesize produces a candidate SELECT for the message. The completion is
// treated as a template: every literal it contains is extracted into bound
// parameters before the candidate leaves this package.
func (s *QuerySynthesizer) Synthesize(ctx context.Context, message string, userID int64) (types.CandidateOperation, error) {
	system := s.queryPrompt(ctx, message, userID)
	completion, err := s.llm.CompleteWithSystem(ctx, system, message)
	if err != nil {
		return types.CandidateOperation{}, fmt.Errorf("query synthesis: %w", err)
	}

	tokens, tables, err := parseCompletion(s.policy, completion)
	if err != nil {
		return types.CandidateOperation{}, err
	}
	if sqlscan.Kind(tokens) != string(types.KindSelect) {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: "expected a SELECT statement"}
	}
	if len(tables) == 0 {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: "no table referenced"}
	}

	paramTokens, params, err := sqlscan.Parameterize(tokens)
	if err != nil {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: err.Error()}
	}
	paramTokens, params = s.applyDefaults(paramTokens, params, tables[0].Name)

	return types.CandidateOperation{
		Kind:   types.KindSelect,
		Table:  tables[0].Name,
		SQL:    sqlscan.Render(paramTokens),
		Params: params,
	}, nil
}

// applyDefaults appends date-descending ordering and a bound page limit to
// row-returning transaction queries that specify neither.
func (s *QuerySynthesizer) applyDefaults(tokens []sqlscan.Token, params []any, table string) ([]sqlscan.Token, []any) {
	tokens = trimSemicolon(tokens)
	if sqlscan.CountKeyword(tokens, "GROUP") > 0 {
		return tokens, params
	}
	for _, fn := range sqlscan.FunctionCalls(tokens) {
		if _, ok := aggregateFunctions[strings.ToLower(fn)]; ok {
			return tokens, params
		}
	}
	if strings.EqualFold(table, "transactions") && sqlscan.CountKeyword(tokens, "ORDER") == 0 {
		tokens = append(tokens,
			sqlscan.Token{Type: sqlscan.TokenKeyword, Text: "ORDER", Upper: "ORDER"},
			sqlscan.Token{Type: sqlscan.TokenKeyword, Text: "BY", Upper: "BY"},
			sqlscan.Token{Type: sqlscan.TokenIdent, Text: "date", Upper: "DATE"},
			sqlscan.Token{Type: sqlscan.TokenKeyword, Text: "DESC", Upper: "DESC"},
		)
	}
	if sqlscan.CountKeyword(tokens, "LIMIT") == 0 {
		tokens = append(tokens,
			sqlscan.Token{Type: sqlscan.TokenKeyword, Text: "LIMIT", Upper: "LIMIT"},
			sqlscan.Token{Type: sqlscan.TokenPlaceholder, Text: "?"},
		)
		params = append(params, int64(s.policy.PageLimit))
	}
	return tokens, params
}

func (s *QuerySynthesizer) queryPrompt(ctx context.Context, message string, userID int64) string {
	var sb strings.Builder
	sb.WriteString("You are a world-class SQL expert for a personal finance database.\n")
	sb.WriteString(s.policy.PromptSchema())
	sb.WriteString(categoriesContext(ctx, s.categories, s.log, message, userID))
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Return ONLY a single SELECT statement. No markdown, no explanation, no comments.\n")
	sb.WriteString("- Use only the listed tables and columns.\n")
	sb.WriteString("- Do not use subqueries or UNION.\n")
	sb.WriteString("- Dates are ISO-8601 strings (YYYY-MM-DD).\n")
	return sb.String()
}

// Synthesize produces a candidate INSERT or UPDATE for the message. The
// checks here are a first filter, deliberately redundant with the
// validator: translator output is adversarial by nature.
func (s *MutationSynthesizer) Synthesize(ctx context.Context, message string, userID int64) (types.CandidateOperation, error) {
	system := s.mutationPrompt(ctx, message, userID)
	completion, err := s.llm.CompleteWithSystem(ctx, system, message)
	if err != nil {
		return types.CandidateOperation{}, fmt.Errorf("mutation synthesis: %w", err)
	}

	tokens, tables, err := parseCompletion(s.policy, completion)
	if err != nil {
		return types.CandidateOperation{}, err
	}

	kind := types.StatementKind(sqlscan.Kind(tokens))
	if kind != types.KindInsert && kind != types.KindUpdate {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: "only INSERT and UPDATE statements are permitted"}
	}
	if sqlscan.CountKeyword(tokens, "SELECT") > 0 {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: "subqueries are not permitted in mutations"}
	}
	if len(tables) != 1 {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: "a mutation must target exactly one table"}
	}
	table, ok := s.policy.Table(tables[0].Name)
	if !ok || !table.Writable {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: fmt.Sprintf("table %s is not writable", tables[0].Name)}
	}

	paramTokens, params, err := sqlscan.Parameterize(tokens)
	if err != nil {
		return types.CandidateOperation{}, &types.SynthesisError{Reason: err.Error()}
	}

	return types.CandidateOperation{
		Kind:   kind,
		Table:  table.Name,
		SQL:    sqlscan.Render(trimSemicolon(paramTokens)),
		Params: params,
	}, nil
}

func (s *MutationSynthesizer) mutationPrompt(ctx context.Context, message string, userID int64) string {
	var sb strings.Builder
	sb.WriteString("You are a world-class SQL expert for a personal finance database.\n")
	sb.WriteString(s.policy.PromptSchema())
	sb.WriteString(categoriesContext(ctx, s.categories, s.log, message, userID))
	sb.WriteString("\nThe user wants to create or update records.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Return ONLY a single INSERT or UPDATE statement. Never DELETE, DROP, or ALTER.\n")
	sb.WriteString("- No markdown, no explanation, no comments, no subqueries.\n")
	sb.WriteString("- INSERT statements must list their columns explicitly.\n")
	sb.WriteString("- Reference categories by the numeric category_id values listed above.\n")
	sb.WriteString("- Dates are ISO-8601 strings (YYYY-MM-DD).\n")
	return sb.String()
}

// parseCompletion runs the shared front half of both specializations:
// fence stripping, single-statement enforcement, tokenization, and the
// table-level allow-list check.
func parseCompletion(policy *schema.Policy, completion string) ([]sqlscan.Token, []sqlscan.TableRef, error) {
	stripped := stripMarkdownSQL(completion)
	if stripped == "" {
		return nil, nil, &types.SynthesisError{Reason: "empty completion"}
	}

	stmts, err := sqlscan.Statements(stripped)
	if err != nil {
		return nil, nil, &types.SynthesisError{Reason: err.Error()}
	}
	if len(stmts) != 1 {
		return nil, nil, &types.SynthesisError{Reason: "more than one statement"}
	}

	tokens, err := sqlscan.Tokenize(stmts[0])
	if err != nil {
		return nil, nil, &types.SynthesisError{Reason: err.Error()}
	}
	if sqlscan.CountKeyword(tokens, "SELECT") > 1 || sqlscan.CountKeyword(tokens, "UNION") > 0 || sqlscan.CountKeyword(tokens, "WITH") > 0 {
		return nil, nil, &types.SynthesisError{Reason: "nested or compound queries are not permitted"}
	}

	tables := sqlscan.Tables(tokens)
	for _, ref := range tables {
		if _, ok := policy.Table(ref.Name); !ok {
			return nil, nil, &types.SynthesisError{Reason: fmt.Sprintf("table %s is not in the schema policy", ref.Name)}
		}
	}
	return tokens, tables, nil
}

// categoriesContext lists the user's categories when the message mentions
// them, so the translator can bind real category ids. A lookup failure
// degrades to no context rather than failing synthesis.
func categoriesContext(ctx context.Context, lister CategoryLister, log *zap.Logger, message string, userID int64) string {
	if lister == nil || !strings.Contains(strings.ToLower(message), "categor") {
		return ""
	}
	cats, err := lister.ListCategories(ctx, userID)
	if err != nil {
		log.Warn("category context lookup failed", zap.Error(err))
		return ""
	}
	if len(cats) == 0 {
		return "\nNo categories defined yet.\n"
	}
	var sb strings.Builder
	sb.WriteString("\nCurrent categories (category_id, name, type):\n")
	for _, c := range cats {
		sb.WriteString(fmt.Sprintf(" - %d, %s (%s)\n", c.ID, c.Name, c.TransactionType))
	}
	return sb.String()
}

// stripMarkdownSQL removes a ```sql fence if the model wrapped its answer.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

func trimSemicolon(tokens []sqlscan.Token) []sqlscan.Token {
	for len(tokens) > 0 && tokens[len(tokens)-1].Text == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}
