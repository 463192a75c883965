package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind is the semantic classification of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
)

// ColumnProfile captures inferred kind and statistics per column.
type ColumnProfile struct {
	Name           string  `json:"name"`
	DeclaredType   string  `json:"declared_type"`
	Kind           Kind    `json:"semantic_kind"`
	IsNumeric      bool    `json:"is_numeric"`
	IsDatetime     bool    `json:"is_datetime"`
	IsCategorical  bool    `json:"is_categorical"`
	IsText         bool    `json:"is_text"`
	NullCount      int     `json:"null_count"`
	NullPercentage float64 `json:"null_percentage"`
	// UniqueCount counts distinct non-null values.
	UniqueCount  int             `json:"unique_count"`
	SampleValues []any           `json:"sample_values"`
	Stats        *NumericStats   `json:"stats,omitempty"`
	TopValues    []CategoryCount `json:"top_values,omitempty"`
}

// NumericStats summarizes a numeric column.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	// Outliers counts values with robust |z| > 3.5 (MAD based).
	Outliers int `json:"outliers"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DataSchema is the ordered profile of a table.
type DataSchema struct {
	Name          string          `json:"name,omitempty"`
	Columns       []ColumnProfile `json:"columns"`
	RowCount      int             `json:"row_count"`
	ColumnCount   int             `json:"column_count"`
	MemoryUsageMB float64         `json:"memory_usage_mb"`
}

// Column looks up a profile by name.
func (s *DataSchema) Column(name string) (ColumnProfile, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// Has reports whether the schema contains the named column.
func (s *DataSchema) Has(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// KindOf returns the kind of the named column, or text when unknown.
func (s *DataSchema) KindOf(name string) Kind {
	if c, ok := s.Column(name); ok {
		return c.Kind
	}
	return KindText
}

// OfKind returns the columns of the given kind in source order.
func (s *DataSchema) OfKind(k Kind) []ColumnProfile {
	var out []ColumnProfile
	for _, c := range s.Columns {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Names returns column names in order.
func (s *DataSchema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// EmptyTableError is returned when profiling a table without rows or columns.
type EmptyTableError struct {
	Rows    int
	Columns int
}

func (e *EmptyTableError) Error() string {
	return fmt.Sprintf("cannot profile empty table (%d rows, %d columns)", e.Rows, e.Columns)
}

// Markdown renders a compact report suitable for prompts or terminal output.
func (s *DataSchema) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", s.RowCount))
	b.WriteString(fmt.Sprintf("Columns: %d\n", s.ColumnCount))
	b.WriteString(fmt.Sprintf("Memory: ~%.2f MB\n\n", s.MemoryUsageMB))

	b.WriteString("[SCHEMA]\n")
	for _, c := range s.Columns {
		b.WriteString(fmt.Sprintf("- %s: %s [%s] (nulls %d, %.2f%%; unique %d)", safeName(c.Name), c.Kind, c.DeclaredType, c.NullCount, c.NullPercentage, c.UniqueCount))
		switch {
		case c.Stats != nil:
			st := c.Stats
			b.WriteString(fmt.Sprintf(" - min %.4g, max %.4g, mean %.4g, median %.4g", st.Min, st.Max, st.Mean, st.Median))
			if st.Outliers > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d", st.Outliers))
			}
		case len(c.TopValues) > 0:
			b.WriteString(" - top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
			}
		case len(c.SampleValues) > 0:
			b.WriteString(" - e.g., ")
			for i, v := range c.SampleValues {
				if i > 0 {
					b.WriteString(" | ")
				}
				b.WriteString(safeVal(truncate(fmt.Sprint(v), 40)))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
