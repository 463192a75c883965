package recommend

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/filter"
)

// ValidationError collects every problem found in a recommendation set.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid recommendations: " + strings.Join(e.Problems, "; ")
}

type problems []string

func (p *problems) addf(format string, args ...any) { *p = append(*p, fmt.Sprintf(format, args...)) }

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: p}
}

// Validate checks that every column reference resolves against the schema and
// that proposed columns do not collide.
func (r *ProcessingRecommendations) Validate(schema *analysis.DataSchema) error {
	var p problems
	drop := map[string]bool{}
	for _, c := range r.ColumnsToDrop {
		if !schema.Has(c) {
			p.addf("columns_to_drop: unknown column %q", c)
		}
		drop[c] = true
	}
	for _, c := range r.ColumnsToKeep {
		if !schema.Has(c) {
			p.addf("columns_to_keep: unknown column %q", c)
		}
		if drop[c] {
			p.addf("column %q is both kept and dropped", c)
		}
	}
	for i, s := range r.CleaningSteps {
		if !schema.Has(s.Column) {
			p.addf("cleaning_steps[%d]: unknown column %q", i, s.Column)
		}
		if s.Op == nil {
			p.addf("cleaning_steps[%d]: missing action", i)
		} else if err := s.Op.validate(); err != nil {
			p.addf("cleaning_steps[%d]: %v", i, err)
		}
	}
	known := map[string]bool{}
	for _, n := range schema.Names() {
		known[n] = true
	}
	for i, f := range r.FeatureEngineering {
		switch {
		case strings.TrimSpace(f.NewColumn) == "":
			p.addf("feature_engineering[%d]: empty new_column_name", i)
		case known[f.NewColumn]:
			p.addf("feature_engineering[%d]: column %q already exists", i, f.NewColumn)
		}
		lo, hi, ok := arity(f.Operation)
		if !ok {
			p.addf("feature_engineering[%d]: unknown operation %q", i, f.Operation)
		} else if len(f.Sources) < lo || (hi >= 0 && len(f.Sources) > hi) {
			p.addf("feature_engineering[%d]: %s takes %s source columns, got %d", i, f.Operation, arityText(lo, hi), len(f.Sources))
		}
		for _, src := range f.Sources {
			if !known[src] {
				p.addf("feature_engineering[%d]: unknown source column %q", i, src)
			}
		}
		if f.Parameters != nil && f.Operation == OpBinNumeric {
			if f.Parameters.Bins != 0 && f.Parameters.Bins < 2 {
				p.addf("feature_engineering[%d]: bins must be at least 2", i)
			}
			if n := len(f.Parameters.Labels); n > 0 && f.Parameters.Bins > 0 && n != f.Parameters.Bins {
				p.addf("feature_engineering[%d]: %d labels for %d bins", i, n, f.Parameters.Bins)
			}
		}
		known[f.NewColumn] = true
	}
	for i, expr := range r.FilteringCriteria {
		e, err := filter.Parse(expr)
		if err != nil {
			p.addf("filtering_criteria[%d]: %v", i, err)
			continue
		}
		for _, c := range e.Columns() {
			if !known[c] {
				p.addf("filtering_criteria[%d]: unknown column %q", i, c)
			}
		}
	}
	return p.err()
}

func arityText(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("at least %d", lo)
	case lo == hi:
		return fmt.Sprintf("exactly %d", lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

// ShapeOf builds the chart shape of a binding from schema kinds.
func ShapeOf(schema *analysis.DataSchema, x string, y []string) chart.Shape {
	s := chart.Shape{XKind: schema.KindOf(x)}
	for _, c := range y {
		s.YKinds = append(s.YKinds, schema.KindOf(c))
	}
	return s
}

// Validate checks chart types and axis bindings against the schema.
func (v *VisualizationRecommendations) Validate(schema *analysis.DataSchema) error {
	var p problems
	for i, c := range v.Charts {
		if !c.Type.Valid() {
			p.addf("charts[%d]: unknown chart type %q", i, c.Type)
			continue
		}
		if !schema.Has(c.X) {
			p.addf("charts[%d]: unknown x_axis column %q", i, c.X)
		}
		if len(c.Y) == 0 {
			p.addf("charts[%d]: empty y_axis", i)
		}
		missing := false
		for _, y := range c.Y {
			if !schema.Has(y) {
				p.addf("charts[%d]: unknown y_axis column %q", i, y)
				missing = true
			}
		}
		if missing || len(c.Y) == 0 || !schema.Has(c.X) {
			continue
		}
		if err := chart.Check(c.Type, c.Y, ShapeOf(schema, c.X, c.Y)); err != nil {
			p.addf("charts[%d]: %v", i, err)
		}
	}
	return p.err()
}

// Validate checks that recommended columns exist.
func (d *DatasetInsights) Validate(schema *analysis.DataSchema) error {
	var p problems
	if strings.TrimSpace(d.Summary) == "" {
		p.addf("empty summary")
	}
	for _, c := range d.RecommendedColumns {
		if !schema.Has(c) {
			p.addf("recommended_columns: unknown column %q", c)
		}
	}
	return p.err()
}
