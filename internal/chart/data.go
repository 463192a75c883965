package chart

import (
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// number coerces a cell to float64. Strings are parsed with locale detection.
func number(v any) (float64, bool) {
	if f, ok := table.Float(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		return analysis.ParseNumber(s)
	}
	return 0, false
}

// prepareData shapes the base projection (rows of [x, y...]) for a chart type.
func prepareData(t Type, x string, y []string, shape Shape, base [][]any) ([]map[string]any, map[string]any) {
	cfg := map[string]any{}
	switch t {
	case Pie, Donut, Bar, HorizontalBar:
		if counted(t, shape) {
			switch t {
			case Donut:
				cfg["inner_radius"] = 0.5
			case HorizontalBar:
				cfg["orientation"] = "horizontal"
			}
			cfg["aggregation"] = "count"
			return countBy(x, y[0], base), cfg
		}
	}
	switch t {
	case Pie, Donut:
		cfg["aggregation"] = "sum"
		if t == Donut {
			cfg["inner_radius"] = 0.5
		}
		return aggregate(x, y[:1], base), cfg
	case Bar, HorizontalBar, StackedBar, GroupedBar:
		switch t {
		case HorizontalBar:
			cfg["orientation"] = "horizontal"
		case StackedBar:
			cfg["stacked"] = true
		case GroupedBar:
			cfg["stacked"] = false
		}
		if shape.ordered() {
			return rowsOf(x, y, sortedRows(base)), cfg
		}
		cfg["aggregation"] = "sum"
		return aggregate(x, y, base), cfg
	case Line, Area:
		if t == Area {
			cfg["fill"] = true
		}
		return rowsOf(x, y, sortedRows(base)), cfg
	case Scatter, Bubble:
		if t == Bubble && len(y) == 2 {
			cfg["size_column"] = y[1]
		}
		return points(x, y, base), cfg
	case Box, Violin:
		return distribution(x, y, base, t == Violin), cfg
	case Heatmap:
		data, cols := pivot(x, y, base)
		cfg["aggregation"] = "mean"
		cfg["columns"] = cols
		return data, cfg
	}
	return rowsOf(x, y, base), cfg
}

func rowsOf(x string, y []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]any, len(y)+1)
		m[x] = table.Render(r[0])
		for i, name := range y {
			m[name] = table.Render(r[i+1])
		}
		out = append(out, m)
	}
	return out
}

// aggregate sums each y column per distinct x, keeping first-seen order.
func aggregate(x string, y []string, rows [][]any) []map[string]any {
	var order []string
	labels := map[string]any{}
	sums := map[string][]float64{}
	for _, r := range rows {
		if table.IsNull(r[0]) {
			continue
		}
		k := table.Key(r[0])
		if _, ok := sums[k]; !ok {
			order = append(order, k)
			labels[k] = table.Render(r[0])
			sums[k] = make([]float64, len(y))
		}
		for i := range y {
			if f, ok := number(r[i+1]); ok {
				sums[k][i] += f
			}
		}
	}
	out := make([]map[string]any, 0, len(order))
	for _, k := range order {
		m := map[string]any{x: labels[k]}
		for i, name := range y {
			m[name] = sums[k][i]
		}
		out = append(out, m)
	}
	return out
}

// countBy counts rows with a non-null y per x in first-seen order. The count is
// keyed by y, or by "count" when y is the x column itself.
func countBy(x, y string, rows [][]any) []map[string]any {
	key := y
	if y == x {
		key = "count"
	}
	var order []string
	labels := map[string]any{}
	counts := map[string]float64{}
	for _, r := range rows {
		if table.IsNull(r[0]) || table.IsNull(r[1]) {
			continue
		}
		k := table.Key(r[0])
		if _, ok := counts[k]; !ok {
			order = append(order, k)
			labels[k] = table.Render(r[0])
		}
		counts[k]++
	}
	out := make([]map[string]any, 0, len(order))
	for _, k := range order {
		out = append(out, map[string]any{x: labels[k], key: counts[k]})
	}
	return out
}

// sortedRows orders rows by x ascending. Nulls go last.
func sortedRows(rows [][]any) [][]any {
	out := append([][]any(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return lessCell(out[i][0], out[j][0]) })
	return out
}

func lessCell(a, b any) bool {
	if table.IsNull(a) || table.IsNull(b) {
		return !table.IsNull(a) && table.IsNull(b)
	}
	if ta, ok := timeOf(a); ok {
		if tb, ok := timeOf(b); ok {
			return ta.Before(tb)
		}
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa < fb
		}
	}
	return table.Key(a) < table.Key(b)
}

func timeOf(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return analysis.ParseTime(x)
	}
	return time.Time{}, false
}

func points(x string, y []string, rows [][]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
next:
	for _, r := range rows {
		m := make(map[string]any, len(y)+1)
		for i, name := range append([]string{x}, y...) {
			f, ok := number(r[i])
			if !ok {
				continue next
			}
			m[name] = f
		}
		out = append(out, m)
	}
	return out
}

// distribution computes five-number summaries per category and variable.
func distribution(x string, y []string, rows [][]any, keepValues bool) []map[string]any {
	var order []string
	labels := map[string]any{}
	vals := map[string][][]float64{}
	for _, r := range rows {
		k := table.Key(r[0])
		if _, ok := vals[k]; !ok {
			order = append(order, k)
			labels[k] = table.Render(r[0])
			vals[k] = make([][]float64, len(y))
		}
		for i := range y {
			if f, ok := number(r[i+1]); ok {
				vals[k][i] = append(vals[k][i], f)
			}
		}
	}
	var out []map[string]any
	for _, k := range order {
		for i, name := range y {
			v := vals[k][i]
			if len(v) == 0 {
				continue
			}
			sort.Float64s(v)
			m := map[string]any{
				x:          labels[k],
				"variable": name,
				"min":      v[0],
				"q1":       analysis.Quantile(v, 0.25),
				"median":   analysis.Quantile(v, 0.5),
				"q3":       analysis.Quantile(v, 0.75),
				"max":      v[len(v)-1],
				"count":    len(v),
			}
			if keepValues {
				m["values"] = v
			}
			out = append(out, m)
		}
	}
	return out
}

// pivot builds a y[0] by x matrix of mean y[1]. It returns rows and the
// ordered column labels.
func pivot(x string, y []string, rows [][]any) ([]map[string]any, []string) {
	type cell struct {
		sum float64
		n   int
	}
	var rowOrder, colOrder []string
	rowLabel := map[string]any{}
	seenCol := map[string]bool{}
	cells := map[string]map[string]*cell{}
	for _, r := range rows {
		f, ok := number(r[2])
		if !ok || table.IsNull(r[0]) || table.IsNull(r[1]) {
			continue
		}
		rk := table.Key(r[1])
		ck := table.String(r[0])
		if _, ok := cells[rk]; !ok {
			rowOrder = append(rowOrder, rk)
			rowLabel[rk] = table.Render(r[1])
			cells[rk] = map[string]*cell{}
		}
		if !seenCol[ck] {
			seenCol[ck] = true
			colOrder = append(colOrder, ck)
		}
		c := cells[rk][ck]
		if c == nil {
			c = &cell{}
			cells[rk][ck] = c
		}
		c.sum += f
		c.n++
	}
	sort.SliceStable(colOrder, func(i, j int) bool { return lessCell(colOrder[i], colOrder[j]) })
	out := make([]map[string]any, 0, len(rowOrder))
	for _, rk := range rowOrder {
		m := map[string]any{y[0]: rowLabel[rk]}
		for _, ck := range colOrder {
			if c := cells[rk][ck]; c != nil {
				m[ck] = c.sum / float64(c.n)
			} else {
				m[ck] = nil
			}
		}
		out = append(out, m)
	}
	return out, colOrder
}

// matches reports whether a cell satisfies a filter value (scalar or list).
func matches(cell any, want any) bool {
	switch w := want.(type) {
	case []any:
		for _, v := range w {
			if matches(cell, v) {
				return true
			}
		}
		return false
	case []string:
		for _, v := range w {
			if matches(cell, v) {
				return true
			}
		}
		return false
	case int:
		want = int64(w)
	}
	if a, ok := number(cell); ok {
		if b, ok := number(want); ok {
			return a == b
		}
	}
	if ta, ok := timeOf(cell); ok {
		if tb, ok := timeOf(want); ok {
			return ta.Equal(tb)
		}
	}
	return strings.EqualFold(table.String(cell), table.String(want))
}
