package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StorageType is the declared storage label of a column.
type StorageType string

const (
	TypeInt      StorageType = "int64"
	TypeFloat    StorageType = "float64"
	TypeBool     StorageType = "bool"
	TypeDatetime StorageType = "datetime64"
	TypeObject   StorageType = "object"
)

// IsNumeric reports whether the storage type holds numbers.
func (s StorageType) IsNumeric() bool { return s == TypeInt || s == TypeFloat }

// Column describes one column of a Table.
type Column struct {
	Name string      `json:"name"`
	Type StorageType `json:"type"`
}

// Table is an in-memory row/column dataset. Cells are nil or one of
// int64, float64, bool, string, time.Time.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// New builds a table; rows shorter than the column list are padded with nil.
func New(name string, cols []Column, rows [][]any) *Table {
	t := &Table{Name: name, Columns: append([]Column(nil), cols...)}
	t.Rows = make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, len(cols))
		copy(row, r)
		t.Rows[i] = row
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.Columns) }

// ColumnNames returns column names in order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool { return t.Index(name) >= 0 }

// Values returns a copy of the cells of column i.
func (t *Table) Values(i int) []any {
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Clone returns a deep copy. Cell values are immutable scalars and are shared.
func (t *Table) Clone() *Table {
	return New(t.Name, t.Columns, t.Rows)
}

// DropColumn removes the named column. It returns false if it did not exist.
func (t *Table) DropColumn(name string) bool {
	i := t.Index(name)
	if i < 0 {
		return false
	}
	t.Columns = append(t.Columns[:i:i], t.Columns[i+1:]...)
	for r, row := range t.Rows {
		t.Rows[r] = append(row[:i:i], row[i+1:]...)
	}
	return true
}

// AddColumn appends a column with the given values (one per row).
func (t *Table) AddColumn(col Column, vals []any) error {
	if t.Has(col.Name) {
		return fmt.Errorf("column %q already exists", col.Name)
	}
	if len(vals) != len(t.Rows) {
		return fmt.Errorf("column %q: got %d values for %d rows", col.Name, len(vals), len(t.Rows))
	}
	t.Columns = append(t.Columns, col)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], vals[r])
	}
	return nil
}

// SetColumn replaces the values and storage type of column i.
func (t *Table) SetColumn(i int, typ StorageType, vals []any) {
	t.Columns[i].Type = typ
	for r := range t.Rows {
		t.Rows[r][i] = vals[r]
	}
}

// Filter keeps rows for which keep returns true and returns the number removed.
func (t *Table) Filter(keep func(row []any) bool) int {
	out := t.Rows[:0]
	for _, row := range t.Rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	removed := len(t.Rows) - len(out)
	for i := len(out); i < len(t.Rows); i++ {
		t.Rows[i] = nil
	}
	t.Rows = out
	return removed
}

// Records returns up to n rows as column-name keyed maps; n <= 0 means all.
func (t *Table) Records(n int) []map[string]any {
	if n <= 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([]map[string]any, n)
	for r := 0; r < n; r++ {
		m := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			m[c.Name] = Render(t.Rows[r][i])
		}
		out[r] = m
	}
	return out
}

// Equal reports whether two tables hold the same columns, types and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.Columns) != len(o.Columns) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for r := range t.Rows {
		for i := range t.Rows[r] {
			if !equalCell(t.Rows[r][i], o.Rows[r][i]) {
				return false
			}
		}
	}
	return true
}

func equalCell(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// IsNull reports whether a cell is missing.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return x != x
	}
	return false
}

// Float converts numeric cells to float64. Strings are not parsed.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		if x != x {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

// Key returns a stable string used to compare cells for distinctness and grouping.
func Key(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// Render returns a JSON-friendly form of a cell.
func Render(v any) any {
	switch x := v.(type) {
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case float64:
		if x != x {
			return nil
		}
	}
	return v
}

// String formats a cell for display.
func String(v any) string {
	if IsNull(v) {
		return ""
	}
	switch x := Render(v).(type) {
	case string:
		return x
	default:
		return strings.TrimSpace(Key(x))
	}
}
