// Package filter parses and evaluates row filter expressions such as
// "revenue >= 0 and `unit price` < 10.5 and region is not null".
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// Op is a comparison operator.
type Op string

const (
	Gt        Op = ">"
	Ge        Op = ">="
	Lt        Op = "<"
	Le        Op = "<="
	Eq        Op = "=="
	Ne        Op = "!="
	IsNull    Op = "is null"
	IsNotNull Op = "is not null"
)

// Cond is one comparison of a column against a literal.
type Cond struct {
	Column string
	Op     Op
	Value  any // float64, string or bool; nil for null tests
}

// Expr is a conjunction of conditions.
type Expr struct {
	Source string
	Conds  []Cond
}

// SyntaxError reports an unparseable expression.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid filter %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// Parse compiles an expression.
func Parse(s string) (*Expr, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{src: s, toks: toks}
	e := &Expr{Source: strings.TrimSpace(s)}
	for {
		c, err := p.cond()
		if err != nil {
			return nil, err
		}
		e.Conds = append(e.Conds, c)
		if p.done() {
			return e, nil
		}
		t := p.next()
		if t.kind != tokWord || !strings.EqualFold(t.text, "and") {
			return nil, p.errAt(t, "expected 'and'")
		}
	}
}

// Columns returns the referenced column names in order of appearance.
func (e *Expr) Columns() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range e.Conds {
		if !seen[c.Column] {
			seen[c.Column] = true
			out = append(out, c.Column)
		}
	}
	return out
}

// Match evaluates the expression with get supplying the cell for a column.
func (e *Expr) Match(get func(column string) any) bool {
	for _, c := range e.Conds {
		if !c.match(get(c.Column)) {
			return false
		}
	}
	return true
}

func (c Cond) match(cell any) bool {
	switch c.Op {
	case IsNull:
		return table.IsNull(cell)
	case IsNotNull:
		return !table.IsNull(cell)
	}
	if table.IsNull(cell) {
		return c.Op == Ne
	}
	cmp, ok := compare(cell, c.Value)
	if !ok {
		// Unordered values only support equality.
		eq := table.String(cell) == fmt.Sprint(c.Value)
		switch c.Op {
		case Eq:
			return eq
		case Ne:
			return !eq
		}
		return false
	}
	switch c.Op {
	case Gt:
		return cmp > 0
	case Ge:
		return cmp >= 0
	case Lt:
		return cmp < 0
	case Le:
		return cmp <= 0
	case Eq:
		return cmp == 0
	case Ne:
		return cmp != 0
	}
	return false
}

// compare orders a cell against a literal numerically, then by time, then
// as strings. ok is false for mixed bool comparisons.
func compare(cell, lit any) (int, bool) {
	if b, isBool := lit.(bool); isBool {
		cb, ok := cell.(bool)
		if !ok {
			if s, isStr := cell.(string); isStr {
				v, err := strconv.ParseBool(s)
				if err != nil {
					return 0, false
				}
				cb = v
			} else {
				return 0, false
			}
		}
		if cb == b {
			return 0, true
		}
		if !cb {
			return -1, true
		}
		return 1, true
	}
	if f, ok := lit.(float64); ok {
		v, ok := numberOf(cell)
		if !ok {
			return 0, false
		}
		return cmpFloat(v, f), true
	}
	s, _ := lit.(string)
	if lt, ok := analysis.ParseTime(s); ok {
		var ct time.Time
		switch x := cell.(type) {
		case time.Time:
			ct = x
		case string:
			if ct, ok = analysis.ParseTime(x); !ok {
				return strings.Compare(x, s), true
			}
		default:
			return 0, false
		}
		return ct.Compare(lt), true
	}
	if f, ok := analysis.ParseNumber(s); ok {
		if v, ok := numberOf(cell); ok {
			return cmpFloat(v, f), true
		}
	}
	return strings.Compare(table.String(cell), s), true
}

func numberOf(v any) (float64, bool) {
	if f, ok := table.Float(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		return analysis.ParseNumber(s)
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// String renders the expression in canonical form.
func (e *Expr) String() string {
	parts := make([]string, len(e.Conds))
	for i, c := range e.Conds {
		switch c.Op {
		case IsNull, IsNotNull:
			parts[i] = Quote(c.Column) + " " + string(c.Op)
		default:
			parts[i] = Quote(c.Column) + " " + string(c.Op) + " " + literal(c.Value)
		}
	}
	return strings.Join(parts, " and ")
}

func literal(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return strconv.Quote(x)
	}
	return fmt.Sprint(v)
}

// Quote returns the column as an identifier, backtick-quoted when needed.
func Quote(col string) string {
	if isIdent(col) && !isKeyword(col) {
		return col
	}
	return "`" + col + "`"
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && (unicode.IsDigit(r) || r == '.')) {
			continue
		}
		return false
	}
	return true
}

func isKeyword(s string) bool {
	switch strings.ToLower(s) {
	case "and", "is", "not", "null", "true", "false":
		return true
	}
	return false
}
