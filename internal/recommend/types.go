// Package recommend holds the recommendation model shared by the fallback
// rule engine and model-backed generators, and the deterministic fallback.
package recommend

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/KaramelBytes/vizloom-cli/internal/chart"
)

// Action names a cleaning step variant.
type Action string

const (
	ActionFillNulls      Action = "fill_nulls"
	ActionRemoveOutliers Action = "remove_outliers"
	ActionConvertType    Action = "convert_type"
	ActionDropColumn     Action = "drop_column"
	ActionDropNulls      Action = "drop_nulls"
)

// Op is the typed parameter set of a cleaning step.
type Op interface {
	Action() Action
	params() map[string]any
	validate() error
}

// Fill strategies.
const (
	FillMean        = "mean"
	FillMedian      = "median"
	FillMode        = "mode"
	FillForward     = "forward_fill"
	FillConstant    = "constant"
	OutlierIQR      = "iqr"
	OutlierZScore   = "zscore"
	ConvertNumeric  = "numeric"
	ConvertDatetime = "datetime"
	ConvertString   = "string"
)

type FillNulls struct {
	Strategy string
	Value    any
}

func (FillNulls) Action() Action { return ActionFillNulls }

func (f FillNulls) params() map[string]any {
	m := map[string]any{"strategy": f.Strategy}
	if f.Strategy == FillConstant {
		m["value"] = f.Value
	}
	return m
}

func (f FillNulls) validate() error {
	switch f.Strategy {
	case FillMean, FillMedian, FillMode, FillForward:
		return nil
	case FillConstant:
		if f.Value == nil {
			return fmt.Errorf("constant fill requires a value")
		}
		return nil
	}
	return fmt.Errorf("unknown fill strategy %q", f.Strategy)
}

// RemoveOutliers drops rows outside Threshold (IQR multiplier or |z|).
type RemoveOutliers struct {
	Method    string
	Threshold float64
}

func (RemoveOutliers) Action() Action { return ActionRemoveOutliers }

func (r RemoveOutliers) params() map[string]any {
	return map[string]any{"method": r.Method, "threshold": r.Threshold}
}

func (r RemoveOutliers) validate() error {
	if r.Method != OutlierIQR && r.Method != OutlierZScore {
		return fmt.Errorf("unknown outlier method %q", r.Method)
	}
	if r.Threshold <= 0 {
		return fmt.Errorf("outlier threshold must be positive")
	}
	return nil
}

// DefaultThreshold returns the conventional threshold for an outlier method.
func DefaultThreshold(method string) float64 {
	if method == OutlierZScore {
		return 3
	}
	return 1.5
}

type ConvertType struct {
	Target string
}

func (ConvertType) Action() Action { return ActionConvertType }

func (c ConvertType) params() map[string]any { return map[string]any{"target_type": c.Target} }

func (c ConvertType) validate() error {
	switch c.Target {
	case ConvertNumeric, ConvertDatetime, ConvertString:
		return nil
	}
	return fmt.Errorf("unknown target type %q", c.Target)
}

type DropColumn struct{}

func (DropColumn) Action() Action         { return ActionDropColumn }
func (DropColumn) params() map[string]any { return map[string]any{} }
func (DropColumn) validate() error        { return nil }

type DropNulls struct{}

func (DropNulls) Action() Action         { return ActionDropNulls }
func (DropNulls) params() map[string]any { return map[string]any{} }
func (DropNulls) validate() error        { return nil }

// CleaningStep is one column-level cleaning recommendation.
type CleaningStep struct {
	Column string
	Reason string
	Op     Op
}

type cleaningWire struct {
	Column     string                     `json:"column_name"`
	Action     Action                     `json:"action"`
	Reason     string                     `json:"reason"`
	Parameters map[string]json.RawMessage `json:"parameters,omitempty"`
}

type cleaningOut struct {
	Column     string         `json:"column_name" yaml:"column_name"`
	Action     Action         `json:"action" yaml:"action"`
	Reason     string         `json:"reason" yaml:"reason"`
	Parameters map[string]any `json:"parameters" yaml:"parameters"`
}

func (s CleaningStep) wire() (cleaningOut, error) {
	if s.Op == nil {
		return cleaningOut{}, fmt.Errorf("cleaning step for %q has no action", s.Column)
	}
	return cleaningOut{s.Column, s.Op.Action(), s.Reason, s.Op.params()}, nil
}

func (s CleaningStep) MarshalJSON() ([]byte, error) {
	w, err := s.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (s CleaningStep) MarshalYAML() (any, error) { return s.wire() }

func (s *CleaningStep) UnmarshalJSON(data []byte) error {
	var w cleaningWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op, err := decodeOp(w.Action, w.Parameters)
	if err != nil {
		return fmt.Errorf("cleaning step for %q: %w", w.Column, err)
	}
	*s = CleaningStep{Column: w.Column, Reason: w.Reason, Op: op}
	return nil
}

// UnknownActionError is returned when decoding a step with an unknown action.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown cleaning action %q", e.Action)
}

func decodeOp(action Action, p map[string]json.RawMessage) (Op, error) {
	str := func(keys ...string) (string, error) {
		for _, k := range keys {
			if raw, ok := p[k]; ok {
				var s string
				if err := json.Unmarshal(raw, &s); err != nil {
					return "", fmt.Errorf("parameter %s: %w", k, err)
				}
				return s, nil
			}
		}
		return "", nil
	}
	var op Op
	switch action {
	case ActionFillNulls:
		st, err := str("strategy", "method")
		if err != nil {
			return nil, err
		}
		f := FillNulls{Strategy: st}
		if raw, ok := p["value"]; ok {
			if err := json.Unmarshal(raw, &f.Value); err != nil {
				return nil, fmt.Errorf("parameter value: %w", err)
			}
		}
		op = f
	case ActionRemoveOutliers:
		m, err := str("method")
		if err != nil {
			return nil, err
		}
		if m == "" {
			m = OutlierIQR
		}
		r := RemoveOutliers{Method: m, Threshold: DefaultThreshold(m)}
		if raw, ok := p["threshold"]; ok {
			if err := json.Unmarshal(raw, &r.Threshold); err != nil {
				var s string
				if json.Unmarshal(raw, &s) != nil {
					return nil, fmt.Errorf("parameter threshold: %w", err)
				}
				if r.Threshold, err = strconv.ParseFloat(s, 64); err != nil {
					return nil, fmt.Errorf("parameter threshold: %w", err)
				}
			}
		}
		op = r
	case ActionConvertType:
		tt, err := str("target_type", "type", "to")
		if err != nil {
			return nil, err
		}
		op = ConvertType{Target: tt}
	case ActionDropColumn:
		op = DropColumn{}
	case ActionDropNulls:
		op = DropNulls{}
	default:
		return nil, &UnknownActionError{Action: string(action)}
	}
	if err := op.validate(); err != nil {
		return nil, err
	}
	return op, nil
}

// Feature operations.
const (
	OpRatio        = "ratio"
	OpDifference   = "difference"
	OpSum          = "sum"
	OpAverage      = "average"
	OpConcatenate  = "concatenate"
	OpExtractYear  = "extract_year"
	OpExtractMonth = "extract_month"
	OpExtractDay   = "extract_day"
	OpBinNumeric   = "bin_numeric"
)

// FeatureParams carries optional operation parameters.
type FeatureParams struct {
	Bins   int      `json:"bins,omitempty" yaml:"bins,omitempty"`
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// FeatureEngineering proposes a derived column.
type FeatureEngineering struct {
	NewColumn   string         `json:"new_column_name" yaml:"new_column_name"`
	Operation   string         `json:"operation" yaml:"operation"`
	Sources     []string       `json:"source_columns" yaml:"source_columns"`
	Description string         `json:"description" yaml:"description"`
	Parameters  *FeatureParams `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// arity returns the min and max number of source columns (max < 0 is unbounded).
func arity(op string) (int, int, bool) {
	switch op {
	case OpRatio, OpDifference:
		return 2, 2, true
	case OpSum, OpAverage, OpConcatenate:
		return 2, -1, true
	case OpExtractYear, OpExtractMonth, OpExtractDay, OpBinNumeric:
		return 1, 1, true
	}
	return 0, 0, false
}

// ProcessingRecommendations is the full processing plan for a dataset.
type ProcessingRecommendations struct {
	ColumnsToDrop      []string             `json:"columns_to_drop" yaml:"columns_to_drop"`
	ColumnsToKeep      []string             `json:"columns_to_keep" yaml:"columns_to_keep"`
	CleaningSteps      []CleaningStep       `json:"cleaning_steps" yaml:"cleaning_steps"`
	FeatureEngineering []FeatureEngineering `json:"feature_engineering" yaml:"feature_engineering"`
	FilteringCriteria  []string             `json:"filtering_criteria" yaml:"filtering_criteria"`
	Explanation        string               `json:"explanation" yaml:"explanation"`
}

// ChartRecommendation suggests one chart.
type ChartRecommendation struct {
	Type            chart.Type   `json:"chart_type" yaml:"chart_type"`
	Title           string       `json:"title" yaml:"title"`
	Description     string       `json:"description" yaml:"description"`
	X               string       `json:"x_axis" yaml:"x_axis"`
	Y               []string     `json:"y_axis" yaml:"y_axis"`
	CompatibleTypes []chart.Type `json:"compatible_types" yaml:"compatible_types"`
	Reasoning       string       `json:"reasoning" yaml:"reasoning"`
}

// Spec converts the recommendation into a chart spec.
func (c ChartRecommendation) Spec() chart.Spec {
	return chart.Spec{Type: c.Type, Title: c.Title, Description: c.Description, X: c.X, Y: append([]string(nil), c.Y...)}
}

type VisualizationRecommendations struct {
	Charts  []ChartRecommendation `json:"charts" yaml:"charts"`
	Summary string                `json:"summary" yaml:"summary"`
}

// DatasetInsights is a qualitative overview of a dataset.
type DatasetInsights struct {
	Summary            string   `json:"summary" yaml:"summary"`
	KeyObservations    []string `json:"key_observations" yaml:"key_observations"`
	PotentialUseCases  []string `json:"potential_use_cases" yaml:"potential_use_cases"`
	DataQualityIssues  []string `json:"data_quality_issues" yaml:"data_quality_issues"`
	RecommendedColumns []string `json:"recommended_columns" yaml:"recommended_columns"`
}
