// Package sqlscan tokenizes the SQL text a translator model produces so the
// pipeline can inspect it before anything touches storage. The scanner is
// deliberately small: it understands exactly enough SQL to split statements,
// classify them, extract table references, and lift every literal out of the
// statement body into bound parameters. Anything it does not understand is an
// error, never a pass-through.
package sqlscan

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TokenType discriminates scanner output.
type TokenType int

const (
	TokenIdent TokenType = iota
	TokenKeyword
	TokenString
	TokenNumber
	TokenPlaceholder
	TokenSymbol
)

// Token is one lexical unit of a statement. Text preserves the original
// spelling; keywords additionally normalize to upper case in Upper.
type Token struct {
	Type  TokenType
	Text  string
	Upper string

	// Injected marks placeholders added by the validator's scope rewrite,
	// so parameter rebuilding can tell them apart from translator output.
	Injected bool
}

var keywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "AND": {}, "OR": {}, "NOT": {},
	"IN": {}, "IS": {}, "NULL": {}, "LIKE": {}, "BETWEEN": {}, "ORDER": {},
	"BY": {}, "GROUP": {}, "HAVING": {}, "LIMIT": {}, "OFFSET": {}, "AS": {},
	"JOIN": {}, "LEFT": {}, "RIGHT": {}, "INNER": {}, "OUTER": {}, "CROSS": {},
	"ON": {}, "INSERT": {}, "INTO": {}, "VALUES": {}, "UPDATE": {}, "SET": {},
	"DELETE": {}, "DISTINCT": {}, "CASE": {}, "WHEN": {}, "THEN": {},
	"ELSE": {}, "END": {}, "ASC": {}, "DESC": {}, "TRUE": {}, "FALSE": {},
	"UNION": {}, "ALL": {}, "EXISTS": {}, "WITH": {}, "CAST": {},
}

// IsKeyword reports whether s is a recognized SQL keyword.
func IsKeyword(s string) bool {
	_, ok := keywords[strings.ToUpper(s)]
	return ok
}

// Tokenize scans a single statement's text. Comments are rejected outright:
// a completion has no business carrying them, and they are a classic way to
// smuggle text past naive filters.
func Tokenize(sql string) ([]Token, error) {
	var tokens []Token
	runes := []rune(sql)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'':
			j := i + 1
			var sb strings.Builder
			for {
				if j >= len(runes) {
					return nil, fmt.Errorf("unterminated string literal")
				}
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						sb.WriteRune('\'')
						j += 2
						continue
					}
					j++
					break
				}
				sb.WriteRune(runes[j])
				j++
			}
			tokens = append(tokens, Token{Type: TokenString, Text: sb.String()})
			i = j
		case r == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated quoted identifier")
			}
			text := string(runes[i+1 : j])
			tokens = append(tokens, identToken(text))
			i = j + 1
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j := i
			seenDot := false
			for j < len(runes) && (unicode.IsDigit(runes[j]) || (runes[j] == '.' && !seenDot)) {
				if runes[j] == '.' {
					seenDot = true
				}
				j++
			}
			tokens = append(tokens, Token{Type: TokenNumber, Text: string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, identToken(string(runes[i:j])))
			i = j
		case r == '?':
			tokens = append(tokens, Token{Type: TokenPlaceholder, Text: "?"})
			i++
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			return nil, fmt.Errorf("comments are not permitted")
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			return nil, fmt.Errorf("comments are not permitted")
		case strings.ContainsRune("(),.*=<>!+-/%", r):
			// Two-rune comparison operators stay whole so pattern checks
			// can match on a single token.
			if i+1 < len(runes) {
				pair := string(runes[i : i+2])
				switch pair {
				case "<=", ">=", "<>", "!=", "||":
					tokens = append(tokens, Token{Type: TokenSymbol, Text: pair, Upper: pair})
					i += 2
					continue
				}
			}
			tokens = append(tokens, Token{Type: TokenSymbol, Text: string(r), Upper: string(r)})
			i++
		case r == ';':
			tokens = append(tokens, Token{Type: TokenSymbol, Text: ";", Upper: ";"})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", string(r))
		}
	}
	return tokens, nil
}

func identToken(text string) Token {
	upper := strings.ToUpper(text)
	if _, ok := keywords[upper]; ok {
		return Token{Type: TokenKeyword, Text: text, Upper: upper}
	}
	return Token{Type: TokenIdent, Text: text, Upper: upper}
}

// Statements splits raw text on top-level semicolons, honoring string
// literals. A single trailing semicolon does not count as a second statement.
func Statements(sql string) ([]string, error) {
	var parts []string
	var sb strings.Builder
	inString := false
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\'' {
			inString = !inString
		}
		if r == ';' && !inString {
			parts = append(parts, sb.String())
			sb.Reset()
			continue
		}
		sb.WriteRune(r)
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal")
	}
	if strings.TrimSpace(sb.String()) != "" {
		parts = append(parts, sb.String())
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out, nil
}

// Kind classifies a token stream by its leading keyword.
func Kind(tokens []Token) string {
	if len(tokens) == 0 {
		return ""
	}
	switch tokens[0].Upper {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return tokens[0].Upper
	}
	return ""
}

// CountKeyword returns how many times kw appears in the stream, at any
// paren depth. Useful for rejecting nested or compound queries.
func CountKeyword(tokens []Token, kw string) int {
	n := 0
	for _, t := range tokens {
		if t.Type == TokenKeyword && t.Upper == kw {
			n++
		}
	}
	return n
}

// Parameterize lifts every literal out of the stream: strings, numbers, and
// the boolean keywords become placeholders whose values are appended to the
// returned parameter list in order. Unary minus directly before a numeric
// literal folds into the parameter when it cannot be a binary operator.
func Parameterize(tokens []Token) ([]Token, []any, error) {
	var out []Token
	var params []any
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.Type {
		case TokenString:
			out = append(out, Token{Type: TokenPlaceholder, Text: "?"})
			params = append(params, t.Text)
		case TokenNumber:
			neg := false
			if n := len(out); n > 0 && out[n-1].Text == "-" && unaryContext(out[:n-1]) {
				out = out[:n-1]
				neg = true
			}
			v, err := parseNumber(t.Text, neg)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, Token{Type: TokenPlaceholder, Text: "?"})
			params = append(params, v)
		case TokenKeyword:
			if t.Upper == "TRUE" || t.Upper == "FALSE" {
				out = append(out, Token{Type: TokenPlaceholder, Text: "?"})
				params = append(params, t.Upper == "TRUE")
				continue
			}
			out = append(out, t)
		default:
			out = append(out, t)
		}
	}
	return out, params, nil
}

// unaryContext reports whether a minus following these tokens must be a
// sign rather than subtraction.
func unaryContext(prior []Token) bool {
	if len(prior) == 0 {
		return true
	}
	last := prior[len(prior)-1]
	switch last.Type {
	case TokenIdent, TokenNumber, TokenString, TokenPlaceholder:
		return false
	case TokenSymbol:
		return last.Text != ")"
	}
	return true
}

func parseNumber(text string, neg bool) (any, error) {
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad numeric literal %q: %w", text, err)
		}
		if neg {
			f = -f
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad numeric literal %q: %w", text, err)
	}
	if neg {
		n = -n
	}
	return n, nil
}

// HasLiteral reports whether any literal token survives in the stream.
// After Parameterize this must be false; the validator re-checks it.
func HasLiteral(tokens []Token) bool {
	for _, t := range tokens {
		switch t.Type {
		case TokenString, TokenNumber:
			return true
		case TokenKeyword:
			if t.Upper == "TRUE" || t.Upper == "FALSE" {
				return true
			}
		}
	}
	return false
}

// Render reassembles a token stream into statement text.
func Render(tokens []Token) string {
	var sb strings.Builder
	for i, t := range tokens {
		if i > 0 && needsSpace(tokens[i-1], t) {
			sb.WriteByte(' ')
		}
		if t.Type == TokenString {
			sb.WriteString("'" + strings.ReplaceAll(t.Text, "'", "''") + "'")
			continue
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func needsSpace(prev, cur Token) bool {
	switch cur.Text {
	case ",", ")", ".", ";":
		return false
	}
	switch prev.Text {
	case "(", ".":
		return false
	}
	return true
}
