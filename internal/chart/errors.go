package chart

import (
	"fmt"
	"strings"
)

// Machine-readable rejection reasons.
const (
	ReasonShapeMismatch          = "shape_mismatch"
	ReasonMultipleSeries         = "multiple_series_not_supported"
	ReasonRequiresMultipleSeries = "requires_multiple_series"
	ReasonRequiresMatrix         = "requires_matrix_shape"
	ReasonNonNumericAxis         = "non_numeric_axis"
)

// InvalidAxisError reports an axis or filter bound to a column that does not exist.
type InvalidAxisError struct {
	Axis      string
	Column    string
	Available []string
}

func (e *InvalidAxisError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("invalid %s axis: no columns given", e.Axis)
	}
	return fmt.Sprintf("invalid %s axis: column %q not found (available: %s)", e.Axis, e.Column, strings.Join(e.Available, ", "))
}

// IncompatibleConversionError is a structured rejection of a chart type.
type IncompatibleConversionError struct {
	From   Type
	To     Type
	Reason string
}

func (e *IncompatibleConversionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("chart type %s not supported for these axes: %s", e.To, e.Reason)
	}
	return fmt.Sprintf("cannot convert %s to %s: %s", e.From, e.To, e.Reason)
}

// InvalidAxisCountError reports a wrong number of numeric y columns.
type InvalidAxisCountError struct {
	Type Type
	Min  int
	Max  int
	Got  int
}

func (e *InvalidAxisCountError) Error() string {
	if e.Min == e.Max {
		return fmt.Sprintf("%s requires exactly %d numeric y columns, got %d", e.Type, e.Min, e.Got)
	}
	return fmt.Sprintf("%s requires %d-%d numeric y columns, got %d", e.Type, e.Min, e.Max, e.Got)
}
