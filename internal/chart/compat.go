package chart

import "github.com/KaramelBytes/vizloom-cli/internal/analysis"

// Shape records the semantic kinds of the bound columns.
type Shape struct {
	XKind  analysis.Kind   `json:"x_kind"`
	YKinds []analysis.Kind `json:"y_kinds"`
}

func (s Shape) ordered() bool {
	return s.XKind == analysis.KindDatetime || s.XKind == analysis.KindNumeric
}

// Classify maps a chart type and its axis shape to a shape class.
func Classify(t Type, s Shape) ShapeClass {
	switch t {
	case Box, Violin, Heatmap:
		return Distribution
	case Scatter, Bubble:
		return PointCloud
	case Line, Area, Bar, HorizontalBar, StackedBar, GroupedBar, Pie, Donut:
		if s.ordered() {
			return Series
		}
		return CategoricalSummary
	}
	panic("chart: unclassified type " + string(t))
}

// seriesCount is the number of plotted series. For point clouds the second y
// column is the size dimension, not a series.
func seriesCount(t Type, y []string) int {
	if (t == Scatter || t == Bubble) && len(y) <= 2 {
		return 1
	}
	return len(y)
}

// Rejection names a chart type and why it cannot be used.
type Rejection struct {
	Type   Type   `json:"type"`
	Reason string `json:"reason"`
}

// Compatibility is the result of comparing a chart against every type.
type Compatibility struct {
	Current      Type        `json:"current"`
	Class        ShapeClass  `json:"shape_class"`
	Compatible   []Type      `json:"compatible_types"`
	Incompatible []Rejection `json:"incompatible_types"`
}

// Reason returns the rejection reason for t, or "" when t is compatible.
func (c Compatibility) Reason(t Type) string {
	for _, r := range c.Incompatible {
		if r.Type == t {
			return r.Reason
		}
	}
	return ""
}

// Allows reports whether t is in the compatible set.
func (c Compatibility) Allows(t Type) bool {
	for _, x := range c.Compatible {
		if x == t {
			return true
		}
	}
	return false
}

// CompatibleTypes classifies the current chart using its literal bindings and
// returns every type it may be converted to. The current type is always included.
func CompatibleTypes(current Type, y []string, shape Shape) Compatibility {
	class := Classify(current, shape)
	members := map[Type]bool{}
	for _, t := range classTypes[class] {
		members[t] = true
	}
	series := seriesCount(current, y)
	out := Compatibility{Current: current, Class: class}
	for _, t := range AllTypes {
		if t == current {
			out.Compatible = append(out.Compatible, t)
			continue
		}
		reason := ""
		switch {
		case series >= 2 && (t == Pie || t == Donut || t == Scatter):
			reason = ReasonMultipleSeries
		case series >= 2 && class == Series && t == Bar:
			// ordered x with several series goes to stacked or grouped bars
			reason = ReasonMultipleSeries
		case !members[t]:
			reason = ReasonShapeMismatch
		default:
			reason = requirement(t, series, shape)
		}
		if reason != "" {
			out.Incompatible = append(out.Incompatible, Rejection{Type: t, Reason: reason})
			continue
		}
		out.Compatible = append(out.Compatible, t)
	}
	return out
}

// requirement checks the per-type axis constraints independent of shape class.
func requirement(t Type, series int, shape Shape) string {
	if counted(t, shape) {
		return ""
	}
	switch t {
	case Pie, Donut, Scatter:
		if series >= 2 {
			return ReasonMultipleSeries
		}
	case StackedBar, GroupedBar:
		if series < 2 {
			return ReasonRequiresMultipleSeries
		}
	case Heatmap:
		if len(shape.YKinds) != 2 {
			return ReasonRequiresMatrix
		}
		if shape.YKinds[1] != analysis.KindNumeric {
			return ReasonNonNumericAxis
		}
		return ""
	}
	for _, k := range shape.YKinds {
		if k != analysis.KindNumeric {
			return ReasonNonNumericAxis
		}
	}
	return ""
}

// counted reports whether t over shape aggregates row counts per category
// instead of summing a numeric measure.
func counted(t Type, shape Shape) bool {
	switch t {
	case Bar, HorizontalBar, Pie, Donut:
	default:
		return false
	}
	return !shape.ordered() && len(shape.YKinds) == 1 && shape.YKinds[0] != analysis.KindNumeric
}

// checkAxisCount enforces the point-cloud cardinality rule.
func checkAxisCount(t Type, shape Shape) error {
	switch t {
	case Scatter, Bubble:
		// a second y column is the bubble size
		if n := len(shape.YKinds); n < 1 || n > 2 {
			return &InvalidAxisCountError{Type: t, Min: 1, Max: 2, Got: n}
		}
	}
	return nil
}

// Check reports whether a chart of type t may be built over these bindings.
func Check(t Type, y []string, shape Shape) error {
	if err := checkAxisCount(t, shape); err != nil {
		return err
	}
	if reason := requirement(t, seriesCount(t, y), shape); reason != "" {
		return &IncompatibleConversionError{To: t, Reason: reason}
	}
	return nil
}
