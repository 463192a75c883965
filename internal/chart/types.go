package chart

import (
	"fmt"
	"strings"
)

// Type is the closed set of chart types.
type Type string

const (
	Line          Type = "line"
	Bar           Type = "bar"
	Scatter       Type = "scatter"
	Pie           Type = "pie"
	Area          Type = "area"
	Box           Type = "box"
	Heatmap       Type = "heatmap"
	HorizontalBar Type = "horizontal_bar"
	StackedBar    Type = "stacked_bar"
	GroupedBar    Type = "grouped_bar"
	Donut         Type = "donut"
	Bubble        Type = "bubble"
	Violin        Type = "violin"
)

// AllTypes lists every chart type in catalog order.
var AllTypes = []Type{Line, Bar, Scatter, Pie, Area, Box, Heatmap, HorizontalBar, StackedBar, GroupedBar, Donut, Bubble, Violin}

// ParseType validates a chart type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown chart type %q", s)
}

// Valid reports whether t is a member of the enumeration.
func (t Type) Valid() bool {
	for _, x := range AllTypes {
		if x == t {
			return true
		}
	}
	return false
}

// Description returns the catalog description of the chart type.
func (t Type) Description() string {
	switch t {
	case Line:
		return "Best for time series and trends"
	case Bar:
		return "Compare categories or values"
	case Scatter:
		return "Show relationships between two variables"
	case Pie:
		return "Show proportions of a whole"
	case Area:
		return "Show cumulative totals over time"
	case Box:
		return "Show distribution and outliers"
	case Heatmap:
		return "Show a matrix of values by two categories"
	case HorizontalBar:
		return "Compare categories with long labels"
	case StackedBar:
		return "Compare part-to-whole across categories"
	case GroupedBar:
		return "Compare several measures side by side"
	case Donut:
		return "Show proportions with a central summary"
	case Bubble:
		return "Relate three numeric dimensions"
	case Violin:
		return "Show the shape of a distribution"
	}
	return ""
}

// ShapeClass is the structural category that decides interchangeability.
type ShapeClass string

const (
	CategoricalSummary ShapeClass = "categorical_summary"
	Series             ShapeClass = "series"
	PointCloud         ShapeClass = "point_cloud"
	Distribution       ShapeClass = "distribution"
)

var classTypes = map[ShapeClass][]Type{
	CategoricalSummary: {Bar, HorizontalBar, Pie, Donut, StackedBar, GroupedBar},
	Series:             {Line, Area, Bar, StackedBar, GroupedBar},
	PointCloud:         {Scatter, Bubble},
	Distribution:       {Box, Violin, Heatmap, Bar, HorizontalBar},
}

// Types returns the chart types mapped to a shape class.
func (c ShapeClass) Types() []Type {
	return append([]Type(nil), classTypes[c]...)
}
