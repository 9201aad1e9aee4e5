package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/types"
)

// Formatter turns execution results into user-facing chat responses.
// Raw identifiers, SQL, and driver errors never appear in the output.
type Formatter struct{}

// NewFormatter creates a formatter.
func NewFormatter() *Formatter { return &Formatter{} }

// FormatQuery renders a query result: a natural-language summary plus a
// tabular payload with dates as ISO strings and money at two decimals.
func (f *Formatter) FormatQuery(res types.ExecutionResult) types.ChatResponse {
	if len(res.Rows) == 0 {
		return types.ChatResponse{
			Response: "No matching records found.",
			Success:  true,
			Data:     &types.TablePayload{Columns: res.Columns},
		}
	}

	payload := &types.TablePayload{Columns: res.Columns}
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = formatCell(res.Columns[i], cell)
		}
		payload.Rows = append(payload.Rows, cells)
	}

	return types.ChatResponse{
		Response: f.summarize(res),
		Success:  true,
		Data:     payload,
	}
}

// FormatMutation confirms a completed write without echoing identifiers.
func (f *Formatter) FormatMutation(op types.ValidatedOperation, res types.ExecutionResult) types.ChatResponse {
	noun := "record"
	switch op.Table {
	case "transactions":
		noun = "transaction"
	case "categories":
		noun = "category"
	}

	var msg string
	switch {
	case op.Kind == types.KindInsert:
		msg = fmt.Sprintf("Done. I've added the new %s.", noun)
	case res.Affected == 0:
		msg = fmt.Sprintf("Nothing matched, so no %s was changed.", noun)
	case res.Affected == 1:
		msg = fmt.Sprintf("Done. I've updated 1 %s.", noun)
	default:
		msg = fmt.Sprintf("Done. I've updated %d %ss.", res.Affected, pluralBase(noun))
	}
	return types.ChatResponse{Response: msg, Success: true}
}

func pluralBase(noun string) string {
	if noun == "category" {
		return "categorie"
	}
	return noun
}

// summarize produces the lead sentence. When the result carries amount
// and transaction_type columns it includes income, expense, and net
// totals computed with exact decimal arithmetic.
func (f *Formatter) summarize(res types.ExecutionResult) string {
	n := len(res.Rows)
	lead := fmt.Sprintf("Found %d matching records.", n)
	if n == 1 {
		lead = "Found 1 matching record."
	}

	amountIdx, typeIdx := -1, -1
	for i, col := range res.Columns {
		switch strings.ToLower(col) {
		case "amount":
			amountIdx = i
		case "transaction_type":
			typeIdx = i
		}
	}
	if amountIdx == -1 || typeIdx == -1 {
		return lead
	}

	income, expense := decimal.Zero, decimal.Zero
	for _, row := range res.Rows {
		amount, err := cellDecimal(row[amountIdx])
		if err != nil {
			return lead
		}
		kind, _ := row[typeIdx].(string)
		switch strings.ToUpper(kind) {
		case "INCOME":
			income = income.Add(amount)
		case "EXPENSE":
			expense = expense.Add(amount)
		}
	}
	net := income.Sub(expense)
	return fmt.Sprintf("%s Income $%s, expenses $%s, net $%s.",
		lead, income.StringFixed(2), expense.StringFixed(2), net.StringFixed(2))
}

func cellDecimal(cell any) (decimal.Decimal, error) {
	switch v := cell.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	case []byte:
		return decimal.NewFromString(string(v))
	default:
		return decimal.Decimal{}, fmt.Errorf("not numeric")
	}
}

func formatCell(column string, cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case time.Time:
		return v.Format("2006-01-02")
	case []byte:
		return string(v)
	case float64:
		if strings.Contains(strings.ToLower(column), "amount") {
			return decimal.NewFromFloat(v).StringFixed(2)
		}
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Failure responses, one per taxonomy bucket. Each is generic on purpose:
// the internals of classification, synthesis, and validation stay in logs.

func (f *Formatter) InvalidRequest() types.ChatResponse {
	return failure("I'm not sure how to help with that. Try asking about your transactions or categories.")
}

func (f *Formatter) SynthesisFailed() types.ChatResponse {
	return failure("I couldn't work out what to do with that request. Could you rephrase it?")
}

func (f *Formatter) ValidationFailed() types.ChatResponse {
	return failure("That isn't something I'm able to do.")
}

func (f *Formatter) ExecutionFailed(cause types.ExecutionCause) types.ChatResponse {
	switch cause {
	case types.CauseConstraint:
		return failure("That value doesn't look right. Please check it and try again.")
	case types.CauseTransient:
		return failure("Things are a little busy right now. Please try again in a moment.")
	default:
		return failure("Something went wrong handling that request. Please try again.")
	}
}

func failure(msg string) types.ChatResponse {
	return types.ChatResponse{Response: msg, Success: false, Error: msg}
}
