// Package schema holds the fixed allow-list of tables, columns, and
// operation shapes the pipeline may touch. Every other component consults
// it; nothing else decides what SQL is acceptable.
package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var embeddedPolicy []byte

// Table describes one allow-listed table.
type Table struct {
	Name           string
	Writable       bool
	Columns        map[string]struct{}
	RequiredInsert []string
	Enums          map[string][]string
}

// HasColumn reports whether name is allow-listed for the table.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Columns[strings.ToLower(name)]
	return ok
}

// EnumValues returns the permitted value domain for column, if any.
func (t *Table) EnumValues(column string) ([]string, bool) {
	vals, ok := t.Enums[strings.ToLower(column)]
	return vals, ok
}

// Policy is the loaded allow-list plus the numeric guardrails the
// validator applies.
type Policy struct {
	tables    map[string]*Table
	functions map[string]struct{}

	// MaxAmount bounds the amount column on writes.
	MaxAmount decimal.Decimal
	// PageLimit is the default row cap for unbounded queries.
	PageLimit int
}

type policyFile struct {
	Tables map[string]struct {
		Writable       bool                `yaml:"writable"`
		Columns        []string            `yaml:"columns"`
		RequiredInsert []string            `yaml:"required_insert"`
		Enums          map[string][]string `yaml:"enums"`
	} `yaml:"tables"`
	Functions []string `yaml:"functions"`
	MaxAmount string   `yaml:"max_amount"`
	PageLimit int      `yaml:"page_limit"`
}

// Load parses the embedded policy. This is the pipeline's only fatal path:
// callers must abort initialization on error rather than degrade.
func Load() (*Policy, error) {
	return parse(embeddedPolicy)
}

func parse(raw []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse schema policy: %w", err)
	}
	if len(file.Tables) == 0 {
		return nil, fmt.Errorf("schema policy declares no tables")
	}
	p := &Policy{
		tables:    make(map[string]*Table, len(file.Tables)),
		functions: make(map[string]struct{}, len(file.Functions)),
		PageLimit: file.PageLimit,
	}
	for name, ft := range file.Tables {
		if len(ft.Columns) == 0 {
			return nil, fmt.Errorf("schema policy: table %s has no columns", name)
		}
		t := &Table{
			Name:           strings.ToLower(name),
			Writable:       ft.Writable,
			Columns:        make(map[string]struct{}, len(ft.Columns)),
			RequiredInsert: ft.RequiredInsert,
			Enums:          make(map[string][]string, len(ft.Enums)),
		}
		for _, c := range ft.Columns {
			t.Columns[strings.ToLower(c)] = struct{}{}
		}
		for col, vals := range ft.Enums {
			t.Enums[strings.ToLower(col)] = vals
		}
		for _, req := range ft.RequiredInsert {
			if !t.HasColumn(req) {
				return nil, fmt.Errorf("schema policy: table %s requires unknown column %s", name, req)
			}
		}
		p.tables[t.Name] = t
	}
	for _, fn := range file.Functions {
		p.functions[strings.ToLower(fn)] = struct{}{}
	}
	maxAmount, err := decimal.NewFromString(file.MaxAmount)
	if err != nil || !maxAmount.IsPositive() {
		return nil, fmt.Errorf("schema policy: bad max_amount %q", file.MaxAmount)
	}
	p.MaxAmount = maxAmount
	if p.PageLimit <= 0 {
		return nil, fmt.Errorf("schema policy: bad page_limit %d", file.PageLimit)
	}
	return p, nil
}

// Table looks up an allow-listed table by name, case-insensitively.
func (p *Policy) Table(name string) (*Table, bool) {
	t, ok := p.tables[strings.ToLower(name)]
	return t, ok
}

// TableNames returns the allow-listed table names, sorted.
func (p *Policy) TableNames() []string {
	names := make([]string, 0, len(p.tables))
	for name := range p.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllowsFunction reports whether the SQL function is permitted.
func (p *Policy) AllowsFunction(name string) bool {
	_, ok := p.functions[strings.ToLower(name)]
	return ok
}

// PromptSchema renders the schema description embedded in synthesis
// prompts, so the translator only ever sees vocabulary the validator will
// accept.
func (p *Policy) PromptSchema() string {
	var sb strings.Builder
	sb.WriteString("The database schema is:\n")
	for _, name := range p.TableNames() {
		t := p.tables[name]
		sb.WriteString("\nTable: " + t.Name + "\n")
		cols := make([]string, 0, len(t.Columns))
		for c := range t.Columns {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			sb.WriteString("- " + c)
			if vals, ok := t.EnumValues(c); ok {
				sb.WriteString(" (one of: " + strings.Join(vals, ", ") + ")")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
