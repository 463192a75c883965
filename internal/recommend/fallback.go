package recommend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/filter"
)

// DropNullPercentage is the null share at or above which a column is dropped.
const DropNullPercentage = 50.0

// Fallback is the deterministic rule engine. It never fails and its output is
// a pure function of schema and goal.
type Fallback struct{}

// Processing recommends cleaning, features and filters.
func (Fallback) Processing(schema *analysis.DataSchema, goal string) *ProcessingRecommendations {
	r := &ProcessingRecommendations{
		ColumnsToDrop:      []string{},
		ColumnsToKeep:      []string{},
		CleaningSteps:      []CleaningStep{},
		FeatureEngineering: []FeatureEngineering{},
		FilteringCriteria:  []string{},
	}
	dropped := map[string]bool{}
	fills := 0
	for _, c := range schema.Columns {
		if c.NullCount == 0 {
			continue
		}
		if c.NullPercentage >= DropNullPercentage {
			dropped[c.Name] = true
			r.ColumnsToDrop = append(r.ColumnsToDrop, c.Name)
			r.CleaningSteps = append(r.CleaningSteps, CleaningStep{
				Column: c.Name,
				Reason: fmt.Sprintf("%.2f%% of values are missing", c.NullPercentage),
				Op:     DropColumn{},
			})
			continue
		}
		st := fillStrategy(c.Kind)
		fills++
		r.ColumnsToKeep = append(r.ColumnsToKeep, c.Name)
		r.CleaningSteps = append(r.CleaningSteps, CleaningStep{
			Column: c.Name,
			Reason: fmt.Sprintf("%.2f%% missing values in a %s column", c.NullPercentage, c.Kind),
			Op:     FillNulls{Strategy: st},
		})
	}
	var numeric []analysis.ColumnProfile
	for _, c := range schema.Columns {
		if dropped[c.Name] {
			continue
		}
		if c.Kind == analysis.KindNumeric {
			numeric = append(numeric, c)
		}
	}

	if top := byCardinality(numeric); len(top) >= 2 {
		a, b := top[0].Name, top[1].Name
		r.FeatureEngineering = append(r.FeatureEngineering, FeatureEngineering{
			NewColumn:   uniqueName(schema, fmt.Sprintf("%s_to_%s_ratio", a, b)),
			Operation:   OpRatio,
			Sources:     []string{a, b},
			Description: fmt.Sprintf("Ratio of %s to %s", a, b),
		})
	}

	g := strings.ToLower(goal)
	if strings.Contains(g, "outlier") {
		for _, c := range numeric {
			if c.Stats == nil {
				continue
			}
			iqr := c.Stats.Q3 - c.Stats.Q1
			if iqr <= 0 {
				continue
			}
			col := filter.Quote(c.Name)
			r.FilteringCriteria = append(r.FilteringCriteria, fmt.Sprintf("%s >= %s and %s <= %s",
				col, formatBound(c.Stats.Q1-1.5*iqr), col, formatBound(c.Stats.Q3+1.5*iqr)))
		}
	}
	if strings.Contains(g, "positive") || strings.Contains(g, "non-negative") {
		for _, c := range numeric {
			r.FilteringCriteria = append(r.FilteringCriteria, filter.Quote(c.Name)+" >= 0")
		}
	}

	r.Explanation = fmt.Sprintf(
		"Dropping %d column(s) with at least %.0f%% missing values and filling missing values in %d column(s). Proposed %d derived feature(s) and %d filter(s).",
		len(r.ColumnsToDrop), DropNullPercentage, fills, len(r.FeatureEngineering), len(r.FilteringCriteria))
	return r
}

func fillStrategy(k analysis.Kind) string {
	switch k {
	case analysis.KindNumeric:
		return FillMedian
	case analysis.KindDatetime:
		return FillForward
	}
	return FillMode
}

func formatBound(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

func uniqueName(schema *analysis.DataSchema, name string) string {
	if !schema.Has(name) {
		return name
	}
	for i := 2; ; i++ {
		n := fmt.Sprintf("%s_%d", name, i)
		if !schema.Has(n) {
			return n
		}
	}
}

// Visualization recommends charts for the schema and goal.
func (Fallback) Visualization(schema *analysis.DataSchema, goal string) *VisualizationRecommendations {
	numeric := rank(schema.OfKind(analysis.KindNumeric), goal)
	categorical := rank(schema.OfKind(analysis.KindCategorical), goal)
	dates := schema.OfKind(analysis.KindDatetime)
	v := &VisualizationRecommendations{Charts: []ChartRecommendation{}}

	add := func(t chart.Type, x string, y []string, desc, why string) {
		c := ChartRecommendation{
			Type:        t,
			Title:       chart.DefaultTitle(t, x, y),
			Description: desc,
			X:           x,
			Y:           y,
			Reasoning:   why,
		}
		c.CompatibleTypes = chart.CompatibleTypes(t, y, ShapeOf(schema, x, y)).Compatible
		v.Charts = append(v.Charts, c)
	}

	if len(dates) > 0 && len(numeric) > 0 {
		add(chart.Line, dates[0].Name, []string{numeric[0].Name},
			fmt.Sprintf("%s over time", numeric[0].Name),
			"Line charts show how a measure changes over an ordered time axis")
	}
	switch {
	case len(categorical) > 0 && len(numeric) > 0:
		add(chart.Bar, categorical[0].Name, []string{numeric[0].Name},
			fmt.Sprintf("Total %s per %s", numeric[0].Name, categorical[0].Name),
			"Bar charts compare an aggregated measure across categories")
	case len(categorical) > 0:
		add(chart.Bar, categorical[0].Name, []string{categorical[0].Name},
			fmt.Sprintf("Number of rows per %s", categorical[0].Name),
			"Without a numeric measure, counting rows per category shows the distribution")
	}
	if card := byCardinality(numeric); len(card) >= 2 {
		add(chart.Scatter, card[0].Name, []string{card[1].Name},
			fmt.Sprintf("Relationship between %s and %s", card[0].Name, card[1].Name),
			"Scatter plots show relationships between continuous variables")
	}
	g := strings.ToLower(goal)
	if (strings.Contains(g, "distribution") || strings.Contains(g, "spread")) && len(categorical) > 0 && len(numeric) > 0 {
		add(chart.Box, categorical[0].Name, []string{numeric[0].Name},
			fmt.Sprintf("Spread of %s per %s", numeric[0].Name, categorical[0].Name),
			"Box plots summarize the spread and outliers of a measure")
	}
	v.Summary = fmt.Sprintf("Suggested %d chart(s) from column kinds and goal keywords.", len(v.Charts))
	return v
}

// Insights summarizes the dataset without a model.
func (Fallback) Insights(schema *analysis.DataSchema) *DatasetInsights {
	name := schema.Name
	if name == "" {
		name = "Dataset"
	}
	counts := map[analysis.Kind]int{}
	for _, c := range schema.Columns {
		counts[c.Kind]++
	}
	d := &DatasetInsights{
		Summary: fmt.Sprintf("%s has %d rows and %d columns (%d numeric, %d categorical, %d datetime, %d text).",
			name, schema.RowCount, schema.ColumnCount,
			counts[analysis.KindNumeric], counts[analysis.KindCategorical], counts[analysis.KindDatetime], counts[analysis.KindText]),
		KeyObservations:    []string{fmt.Sprintf("Data contains %d columns", schema.ColumnCount)},
		PotentialUseCases:  []string{},
		DataQualityIssues:  []string{},
		RecommendedColumns: []string{},
	}
	for _, c := range schema.Columns {
		switch {
		case c.Stats != nil:
			d.KeyObservations = append(d.KeyObservations, fmt.Sprintf("%s ranges from %.4g to %.4g (mean %.4g)", c.Name, c.Stats.Min, c.Stats.Max, c.Stats.Mean))
			if c.Stats.Outliers > 0 {
				d.DataQualityIssues = append(d.DataQualityIssues, fmt.Sprintf("%s has %d potential outliers", c.Name, c.Stats.Outliers))
			}
		case len(c.TopValues) > 0:
			d.KeyObservations = append(d.KeyObservations, fmt.Sprintf("%s has %d distinct values; most common is %s (%d)", c.Name, c.UniqueCount, c.TopValues[0].Value, c.TopValues[0].Count))
		}
		if c.NullCount > 0 {
			d.DataQualityIssues = append(d.DataQualityIssues, fmt.Sprintf("%s has %d missing values (%.2f%%)", c.Name, c.NullCount, c.NullPercentage))
		}
		if c.UniqueCount == 1 && schema.RowCount > 1 {
			d.DataQualityIssues = append(d.DataQualityIssues, fmt.Sprintf("%s holds a single constant value", c.Name))
		}
	}
	if counts[analysis.KindDatetime] > 0 && counts[analysis.KindNumeric] > 0 {
		d.PotentialUseCases = append(d.PotentialUseCases, "Track numeric measures over time")
	}
	if counts[analysis.KindCategorical] > 0 && counts[analysis.KindNumeric] > 0 {
		d.PotentialUseCases = append(d.PotentialUseCases, "Compare measures across categories")
	}
	if counts[analysis.KindNumeric] >= 2 {
		d.PotentialUseCases = append(d.PotentialUseCases, "Explore correlations between numeric variables")
	}
	if len(d.PotentialUseCases) == 0 {
		d.PotentialUseCases = append(d.PotentialUseCases, "Explore relationships between variables")
	}
	for _, c := range rank(schema.Columns, "") {
		if len(d.RecommendedColumns) == 5 {
			break
		}
		if c.NullPercentage < DropNullPercentage {
			d.RecommendedColumns = append(d.RecommendedColumns, c.Name)
		}
	}
	return d
}

// Normalize replaces model-supplied compatible types with the engine's verdict.
func (v *VisualizationRecommendations) Normalize(schema *analysis.DataSchema) {
	for i := range v.Charts {
		c := &v.Charts[i]
		c.CompatibleTypes = chart.CompatibleTypes(c.Type, c.Y, ShapeOf(schema, c.X, c.Y)).Compatible
		if c.Title == "" {
			c.Title = chart.DefaultTitle(c.Type, c.X, c.Y)
		}
	}
}
