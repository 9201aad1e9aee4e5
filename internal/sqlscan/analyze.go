package sqlscan

import "fmt"

// TableRef is a table access with its effective alias. Alias equals the
// table name when none was declared.
type TableRef struct {
	Name  string
	Alias string
}

// Tables extracts every table reference from a token stream: the targets of
// FROM, JOIN, INTO, and UPDATE clauses, including comma-separated FROM lists.
func Tables(tokens []Token) []TableRef {
	var refs []TableRef
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Type != TokenKeyword {
			continue
		}
		switch t.Upper {
		case "FROM":
			i = scanTableList(tokens, i+1, &refs)
		case "JOIN", "INTO", "UPDATE":
			i = scanTableRef(tokens, i+1, &refs)
		}
	}
	return refs
}

// scanTableList consumes `name [alias] [, name [alias]]*` starting at idx.
func scanTableList(tokens []Token, idx int, refs *[]TableRef) int {
	for {
		idx = scanTableRef(tokens, idx, refs)
		if idx+1 < len(tokens) && tokens[idx+1].Text == "," {
			idx += 2
			continue
		}
		return idx
	}
}

// scanTableRef consumes `name [AS] [alias]` and returns the index of the
// last token consumed.
func scanTableRef(tokens []Token, idx int, refs *[]TableRef) int {
	if idx >= len(tokens) || tokens[idx].Type != TokenIdent {
		return idx - 1
	}
	ref := TableRef{Name: tokens[idx].Text, Alias: tokens[idx].Text}
	last := idx
	next := idx + 1
	if next < len(tokens) && tokens[next].Type == TokenKeyword && tokens[next].Upper == "AS" {
		next++
	}
	if next < len(tokens) && tokens[next].Type == TokenIdent {
		ref.Alias = tokens[next].Text
		last = next
	}
	*refs = append(*refs, ref)
	return last
}

// ColumnRefs returns the identifiers in the stream that must be column
// names: everything that is not a table name, an alias, a function call, a
// qualifier before a dot, or an identifier introduced by AS.
func ColumnRefs(tokens []Token, tables []TableRef) []string {
	skip := make(map[string]struct{}, len(tables)*2)
	for _, ref := range tables {
		skip[ref.Name] = struct{}{}
		skip[ref.Alias] = struct{}{}
	}
	var cols []string
	for i, t := range tokens {
		if t.Type != TokenIdent {
			continue
		}
		if _, ok := skip[t.Text]; ok {
			continue
		}
		// function call
		if i+1 < len(tokens) && tokens[i+1].Text == "(" {
			continue
		}
		// qualifier of a dotted reference
		if i+1 < len(tokens) && tokens[i+1].Text == "." {
			continue
		}
		// projection or table alias introduced by AS
		if i > 0 && tokens[i-1].Type == TokenKeyword && tokens[i-1].Upper == "AS" {
			continue
		}
		cols = append(cols, t.Text)
	}
	return cols
}

// FunctionCalls lists the function names invoked in the stream.
func FunctionCalls(tokens []Token) []string {
	var fns []string
	for i, t := range tokens {
		if t.Type == TokenIdent && i+1 < len(tokens) && tokens[i+1].Text == "(" {
			fns = append(fns, t.Text)
		}
	}
	return fns
}

// InsertShape is the fixed form mutations must take: a single-table insert
// with an explicit column list and a single VALUES row.
type InsertShape struct {
	Table string
	// Columns in declaration order.
	Columns []string
	// ParamIndex maps a column name to its ordinal in the bound parameter
	// list, or -1 when the value is the NULL keyword.
	ParamIndex map[string]int
}

// ParseInsert checks that a parameterized token stream is exactly
// `INSERT INTO table (c1, …) VALUES (v1, …)` where every value is a
// placeholder or NULL. Anything else, subqueries included, is an error.
func ParseInsert(tokens []Token) (InsertShape, error) {
	shape := InsertShape{ParamIndex: make(map[string]int)}
	i := 0
	expectKw := func(kw string) error {
		if i >= len(tokens) || tokens[i].Type != TokenKeyword || tokens[i].Upper != kw {
			return fmt.Errorf("malformed insert: expected %s", kw)
		}
		i++
		return nil
	}
	if err := expectKw("INSERT"); err != nil {
		return shape, err
	}
	if err := expectKw("INTO"); err != nil {
		return shape, err
	}
	if i >= len(tokens) || tokens[i].Type != TokenIdent {
		return shape, fmt.Errorf("malformed insert: missing table name")
	}
	shape.Table = tokens[i].Text
	i++
	if i >= len(tokens) || tokens[i].Text != "(" {
		return shape, fmt.Errorf("malformed insert: explicit column list required")
	}
	i++
	for {
		if i >= len(tokens) || tokens[i].Type != TokenIdent {
			return shape, fmt.Errorf("malformed insert: bad column list")
		}
		shape.Columns = append(shape.Columns, tokens[i].Text)
		i++
		if i < len(tokens) && tokens[i].Text == "," {
			i++
			continue
		}
		break
	}
	if i >= len(tokens) || tokens[i].Text != ")" {
		return shape, fmt.Errorf("malformed insert: unclosed column list")
	}
	i++
	if err := expectKw("VALUES"); err != nil {
		return shape, err
	}
	if i >= len(tokens) || tokens[i].Text != "(" {
		return shape, fmt.Errorf("malformed insert: missing values list")
	}
	i++
	param := 0
	for col := 0; ; col++ {
		if col >= len(shape.Columns) {
			return shape, fmt.Errorf("malformed insert: more values than columns")
		}
		switch {
		case i < len(tokens) && tokens[i].Type == TokenPlaceholder:
			shape.ParamIndex[shape.Columns[col]] = param
			param++
		case i < len(tokens) && tokens[i].Type == TokenKeyword && tokens[i].Upper == "NULL":
			shape.ParamIndex[shape.Columns[col]] = -1
		default:
			return shape, fmt.Errorf("malformed insert: values must be bound parameters or NULL")
		}
		i++
		if i < len(tokens) && tokens[i].Text == "," {
			i++
			continue
		}
		if col+1 != len(shape.Columns) {
			return shape, fmt.Errorf("malformed insert: fewer values than columns")
		}
		break
	}
	if i >= len(tokens) || tokens[i].Text != ")" {
		return shape, fmt.Errorf("malformed insert: unclosed values list")
	}
	i++
	if i < len(tokens) && tokens[i].Text == ";" {
		i++
	}
	if i != len(tokens) {
		return shape, fmt.Errorf("malformed insert: trailing tokens")
	}
	return shape, nil
}

// UpdateShape captures the SET assignments of an update statement.
type UpdateShape struct {
	Table string
	// Assignments maps a column name to the parameter ordinal bound to it,
	// or -1 when assigned NULL.
	Assignments map[string]int
	// WhereIndex is the token index of the top-level WHERE keyword, or -1.
	WhereIndex int
}

// ParseUpdate checks `UPDATE table SET col = v [, col = v]* [WHERE …]`
// where every assigned value is a placeholder or NULL.
func ParseUpdate(tokens []Token) (UpdateShape, error) {
	shape := UpdateShape{Assignments: make(map[string]int), WhereIndex: -1}
	if len(tokens) < 2 || tokens[0].Upper != "UPDATE" || tokens[1].Type != TokenIdent {
		return shape, fmt.Errorf("malformed update: missing table name")
	}
	shape.Table = tokens[1].Text
	i := 2
	if i < len(tokens) && tokens[i].Type == TokenIdent {
		// reject aliased update targets; keeps scope rewriting simple
		return shape, fmt.Errorf("malformed update: table aliases are not permitted")
	}
	if i >= len(tokens) || tokens[i].Type != TokenKeyword || tokens[i].Upper != "SET" {
		return shape, fmt.Errorf("malformed update: expected SET")
	}
	i++
	param := countPlaceholders(tokens[:i])
	for {
		if i+2 >= len(tokens) || tokens[i].Type != TokenIdent || tokens[i+1].Text != "=" {
			return shape, fmt.Errorf("malformed update: bad assignment")
		}
		col := tokens[i].Text
		val := tokens[i+2]
		switch {
		case val.Type == TokenPlaceholder:
			shape.Assignments[col] = param
			param++
		case val.Type == TokenKeyword && val.Upper == "NULL":
			shape.Assignments[col] = -1
		default:
			return shape, fmt.Errorf("malformed update: assignments must be bound parameters or NULL")
		}
		i += 3
		if i < len(tokens) && tokens[i].Text == "," {
			i++
			continue
		}
		break
	}
	if i < len(tokens) {
		if tokens[i].Type != TokenKeyword || tokens[i].Upper != "WHERE" {
			return shape, fmt.Errorf("malformed update: trailing tokens after assignments")
		}
		shape.WhereIndex = i
	}
	return shape, nil
}

func countPlaceholders(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if t.Type == TokenPlaceholder {
			n++
		}
	}
	return n
}

// Placeholders returns the number of placeholder tokens in the stream.
func Placeholders(tokens []Token) int { return countPlaceholders(tokens) }
