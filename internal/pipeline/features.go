package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// DefaultBins is used by bin_numeric when no bin count is given.
const DefaultBins = 5

func (r *run) feature(f recommend.FeatureEngineering) {
	op := f.Operation
	if f.NewColumn == "" {
		r.skip("feature", op, "Skipped feature: empty column name")
		return
	}
	if r.t.Has(f.NewColumn) {
		r.skip("feature", op, "Skipped feature '%s': column already exists", f.NewColumn)
		return
	}
	if len(f.Sources) == 0 {
		r.skip("feature", op, "Skipped feature '%s': no source columns", f.NewColumn)
		return
	}
	idx := make([]int, len(f.Sources))
	for k, s := range f.Sources {
		if idx[k] = r.t.Index(s); idx[k] < 0 {
			r.skip("feature", op, "Skipped feature '%s': source column '%s' not found", f.NewColumn, s)
			return
		}
	}
	col, vals, msg, err := r.derive(f, idx)
	if err != nil {
		r.skip("feature", op, "Skipped feature '%s': %v", f.NewColumn, err)
		return
	}
	if err := r.t.AddColumn(col, vals); err != nil {
		r.skip("feature", op, "Skipped feature '%s': %v", f.NewColumn, err)
		return
	}
	r.logf("Created '%s' %s", f.NewColumn, msg)
	r.done("feature", op)
}

func quoted(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = "'" + c + "'"
	}
	return strings.Join(q, ", ")
}

func (r *run) derive(f recommend.FeatureEngineering, idx []int) (table.Column, []any, string, error) {
	n := r.t.Len()
	out := make([]any, n)
	col := table.Column{Name: f.NewColumn, Type: table.TypeFloat}
	src := f.Sources
	need := func(k int) error {
		if len(idx) < k {
			return stepError(fmt.Sprintf("%s needs %d source columns", f.Operation, k))
		}
		return nil
	}
	requireNumeric := func() error {
		for _, i := range idx {
			if _, ok := numbers(r.t.Values(i)); !ok {
				return stepError(fmt.Sprintf("column '%s' is not numeric", r.t.Columns[i].Name))
			}
		}
		return nil
	}

	switch f.Operation {
	case recommend.OpRatio, recommend.OpDifference:
		if err := need(2); err != nil {
			return col, nil, "", err
		}
		if err := requireNumeric(); err != nil {
			return col, nil, "", err
		}
		for k, row := range r.t.Rows {
			a, okA := numberOf(row[idx[0]])
			b, okB := numberOf(row[idx[1]])
			switch {
			case !okA || !okB:
			case f.Operation == recommend.OpDifference:
				out[k] = a - b
			case b != 0:
				out[k] = a / b
			}
		}
		if f.Operation == recommend.OpRatio {
			return col, out, fmt.Sprintf("as ratio of '%s' to '%s'", src[0], src[1]), nil
		}
		return col, out, fmt.Sprintf("as difference of '%s' and '%s'", src[0], src[1]), nil

	case recommend.OpSum, recommend.OpAverage:
		if err := requireNumeric(); err != nil {
			return col, nil, "", err
		}
		for k, row := range r.t.Rows {
			var sum float64
			cnt := 0
			for _, i := range idx {
				if v, ok := numberOf(row[i]); ok {
					sum += v
					cnt++
				}
			}
			switch {
			case f.Operation == recommend.OpSum:
				out[k] = sum
			case cnt > 0:
				out[k] = sum / float64(cnt)
			}
		}
		if f.Operation == recommend.OpSum {
			return col, out, "as sum of " + quoted(src), nil
		}
		return col, out, "as average of " + quoted(src), nil

	case recommend.OpConcatenate:
		col.Type = table.TypeObject
		for k, row := range r.t.Rows {
			parts := make([]string, len(idx))
			for j, i := range idx {
				parts[j] = table.String(row[i])
			}
			out[k] = strings.Join(parts, " ")
		}
		return col, out, "by concatenating " + quoted(src), nil

	case recommend.OpExtractYear, recommend.OpExtractMonth, recommend.OpExtractDay:
		col.Type = table.TypeInt
		parsed := 0
		for k, row := range r.t.Rows {
			tm, ok := timeOf(row[idx[0]])
			if !ok {
				continue
			}
			parsed++
			switch f.Operation {
			case recommend.OpExtractYear:
				out[k] = int64(tm.Year())
			case recommend.OpExtractMonth:
				out[k] = int64(tm.Month())
			default:
				out[k] = int64(tm.Day())
			}
		}
		if parsed == 0 && n > 0 {
			return col, nil, "", stepError(fmt.Sprintf("column '%s' has no parseable dates", src[0]))
		}
		part := strings.TrimPrefix(f.Operation, "extract_")
		return col, out, fmt.Sprintf("by extracting %s from '%s'", part, src[0]), nil

	case recommend.OpBinNumeric:
		col.Type = table.TypeObject
		bins, labels := DefaultBins, []string(nil)
		if f.Parameters != nil {
			if f.Parameters.Bins > 0 {
				bins = f.Parameters.Bins
			}
			labels = f.Parameters.Labels
		}
		if len(labels) > 0 && f.Parameters.Bins == 0 {
			bins = len(labels)
		}
		if bins < 1 || (len(labels) > 0 && len(labels) != bins) {
			return col, nil, "", stepError(fmt.Sprintf("%d labels for %d bins", len(labels), bins))
		}
		if err := requireNumeric(); err != nil {
			return col, nil, "", err
		}
		nums, _ := numbers(r.t.Values(idx[0]))
		if len(nums) == 0 {
			return col, nil, "", stepError("column has no non-null values")
		}
		lo, hi := nums[0], nums[0]
		for _, v := range nums {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		width := (hi - lo) / float64(bins)
		if labels == nil {
			labels = make([]string, bins)
			for b := range labels {
				l, u := lo+float64(b)*width, lo+float64(b+1)*width
				if b == bins-1 {
					u = hi
				}
				if b == 0 {
					labels[b] = fmt.Sprintf("[%.4g, %.4g]", l, u)
				} else {
					labels[b] = fmt.Sprintf("(%.4g, %.4g]", l, u)
				}
			}
		}
		for k, row := range r.t.Rows {
			v, ok := numberOf(row[idx[0]])
			if !ok {
				continue
			}
			b := 0
			if width > 0 {
				b = int(math.Ceil((v-lo)/width)) - 1
				if b < 0 {
					b = 0
				}
				if b >= bins {
					b = bins - 1
				}
			}
			out[k] = labels[b]
		}
		return col, out, fmt.Sprintf("by binning '%s' into %d bins", src[0], bins), nil
	}
	return col, nil, "", stepError("unknown operation " + f.Operation)
}
