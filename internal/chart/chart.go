// Package chart builds chart specifications over a processed table and
// decides which chart types a given axis binding may be converted to.
package chart

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// Spec describes a chart to create.
type Spec struct {
	Type        Type           `json:"chart_type"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	X           string         `json:"x_column"`
	Y           []string       `json:"y_columns"`
	Filters     map[string]any `json:"filters,omitempty"`
}

// Chart is a renderable chart bound to table columns.
type Chart struct {
	ID              string           `json:"chart_id"`
	Type            Type             `json:"chart_type"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Data            []map[string]any `json:"data"`
	XAxis           string           `json:"x_axis"`
	YAxis           []string         `json:"y_axis"`
	CompatibleTypes []Type           `json:"compatible_types"`
	Configuration   map[string]any   `json:"configuration"`
	Shape           Shape            `json:"shape"`
	CreatedAt       time.Time        `json:"created_at"`

	// base holds the filtered projection [x, y...] used to recompute data
	// on conversion.
	base [][]any
}

// Clone returns a copy of c whose slices and maps are not shared with c.
// Nested configuration values such as filters are shared.
func (c *Chart) Clone() *Chart {
	cp := *c
	cp.YAxis = slices.Clone(c.YAxis)
	cp.CompatibleTypes = slices.Clone(c.CompatibleTypes)
	cp.Configuration = maps.Clone(c.Configuration)
	cp.Shape.YKinds = slices.Clone(c.Shape.YKinds)
	if c.Data != nil {
		cp.Data = make([]map[string]any, len(c.Data))
		for i, row := range c.Data {
			cp.Data[i] = maps.Clone(row)
		}
	}
	return &cp
}

// Create validates the spec against the table and builds a chart.
func Create(tb *table.Table, schema *analysis.DataSchema, spec Spec) (*Chart, error) {
	if tb == nil || schema == nil {
		return nil, fmt.Errorf("chart: no dataset")
	}
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("unknown chart type %q", spec.Type)
	}
	avail := tb.ColumnNames()
	xi := tb.Index(spec.X)
	if xi < 0 {
		return nil, &InvalidAxisError{Axis: "x", Column: spec.X, Available: avail}
	}
	if len(spec.Y) == 0 {
		return nil, &InvalidAxisError{Axis: "y", Available: avail}
	}
	idx := []int{xi}
	shape := Shape{XKind: schema.KindOf(spec.X)}
	for _, y := range spec.Y {
		i := tb.Index(y)
		if i < 0 {
			return nil, &InvalidAxisError{Axis: "y", Column: y, Available: avail}
		}
		idx = append(idx, i)
		shape.YKinds = append(shape.YKinds, schema.KindOf(y))
	}
	filters, err := resolveFilters(tb, spec.Filters)
	if err != nil {
		return nil, err
	}
	if err := Check(spec.Type, spec.Y, shape); err != nil {
		return nil, err
	}

	var base [][]any
	for _, row := range tb.Rows {
		if !keep(row, filters) {
			continue
		}
		p := make([]any, len(idx))
		for j, i := range idx {
			p[j] = row[i]
		}
		base = append(base, p)
	}

	c := &Chart{
		ID:          uuid.NewString(),
		Type:        spec.Type,
		Title:       spec.Title,
		Description: spec.Description,
		XAxis:       spec.X,
		YAxis:       append([]string(nil), spec.Y...),
		Shape:       shape,
		CreatedAt:   time.Now().UTC(),
		base:        base,
	}
	if c.Title == "" {
		c.Title = DefaultTitle(spec.Type, spec.X, spec.Y)
	}
	c.Data, c.Configuration = prepareData(c.Type, c.XAxis, c.YAxis, shape, base)
	if len(spec.Filters) > 0 {
		c.Configuration["filters"] = spec.Filters
	}
	c.CompatibleTypes = CompatibleTypes(c.Type, c.YAxis, shape).Compatible
	return c, nil
}

type filter struct {
	col  int
	want any
}

func resolveFilters(tb *table.Table, in map[string]any) ([]filter, error) {
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]filter, 0, len(names))
	for _, n := range names {
		i := tb.Index(n)
		if i < 0 {
			return nil, &InvalidAxisError{Axis: "filter", Column: n, Available: tb.ColumnNames()}
		}
		out = append(out, filter{col: i, want: in[n]})
	}
	return out, nil
}

func keep(row []any, fs []filter) bool {
	for _, f := range fs {
		if !matches(row[f.col], f.want) {
			return false
		}
	}
	return true
}

// Compatibility reports the chart's shape class and per-type verdicts.
func (c *Chart) Compatibility() Compatibility {
	return CompatibleTypes(c.Type, c.YAxis, c.Shape)
}

// Convert changes the chart type and recomputes data. On error the chart is
// left unchanged.
func (c *Chart) Convert(to Type) error {
	if !to.Valid() {
		return fmt.Errorf("unknown chart type %q", to)
	}
	if to == c.Type {
		return nil
	}
	compat := c.Compatibility()
	if !compat.Allows(to) {
		return &IncompatibleConversionError{From: c.Type, To: to, Reason: compat.Reason(to)}
	}
	y := c.YAxis
	shape := c.Shape
	cfgExtra := map[string]any{}
	switch to {
	case Scatter, Bubble:
		if err := checkAxisCount(to, shape); err != nil {
			return err
		}
	case Pie, Donut:
		if len(y) > 1 {
			cfgExtra["dropped_series"] = append([]string(nil), y[1:]...)
			y = y[:1]
			shape = Shape{XKind: shape.XKind, YKinds: shape.YKinds[:1]}
		}
	}
	base := c.base
	if len(y) < len(c.YAxis) {
		base = make([][]any, len(c.base))
		for i, r := range c.base {
			base[i] = r[:len(y)+1]
		}
	}
	data, cfg := prepareData(to, c.XAxis, y, shape, base)
	for k, v := range cfgExtra {
		cfg[k] = v
	}
	if f, ok := c.Configuration["filters"]; ok {
		cfg["filters"] = f
	}
	c.Type = to
	c.YAxis = append([]string(nil), y...)
	c.Shape = Shape{XKind: shape.XKind, YKinds: append([]analysis.Kind(nil), shape.YKinds...)}
	c.base = base
	c.Data = data
	c.Configuration = cfg
	c.CompatibleTypes = CompatibleTypes(to, c.YAxis, c.Shape).Compatible
	return nil
}
