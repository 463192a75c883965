package pipeline

import (
	"math"
	"sort"
	"time"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

func numberOf(v any) (float64, bool) {
	if f, ok := table.Float(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		return analysis.ParseNumber(s)
	}
	return 0, false
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

// numbers returns the non-null values of a column as floats. ok is false when
// any non-null cell is not numeric.
func numbers(vals []any) ([]float64, bool) {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if table.IsNull(v) {
			continue
		}
		f, ok := numberOf(v)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func (r *run) clean(s recommend.CleaningStep) {
	if s.Op == nil {
		r.skip("cleaning", "unknown", "Skipped step on '%s': missing action", s.Column)
		return
	}
	action := string(s.Op.Action())
	i := r.t.Index(s.Column)
	if i < 0 {
		r.skip("cleaning", action, "Skipped %s on '%s': column not found", action, s.Column)
		return
	}
	var err error
	switch op := s.Op.(type) {
	case recommend.FillNulls:
		err = r.fillNulls(i, op)
	case recommend.RemoveOutliers:
		err = r.removeOutliers(i, op)
	case recommend.ConvertType:
		r.convert(i, op)
	case recommend.DropNulls:
		removed := r.t.Filter(func(row []any) bool { return !table.IsNull(row[i]) })
		r.logf("Dropped %d rows with nulls in '%s'", removed, s.Column)
	case recommend.DropColumn:
		r.dropColumn(s.Column)
		return
	}
	if err != nil {
		r.skip("cleaning", action, "Skipped %s on '%s': %v", action, s.Column, err)
		return
	}
	r.done("cleaning", action)
}

type stepError string

func (e stepError) Error() string { return string(e) }

func (r *run) fillNulls(i int, op recommend.FillNulls) error {
	col := r.t.Columns[i]
	vals := r.t.Values(i)
	nulls := 0
	for _, v := range vals {
		if table.IsNull(v) {
			nulls++
		}
	}
	typ := col.Type
	var fill any
	switch op.Strategy {
	case recommend.FillMean, recommend.FillMedian:
		nums, ok := numbers(vals)
		if !ok {
			return stepError(op.Strategy + " requires a numeric column")
		}
		if len(nums) == 0 {
			return stepError("column has no non-null values")
		}
		var f float64
		if op.Strategy == recommend.FillMean {
			for _, x := range nums {
				f += x
			}
			f /= float64(len(nums))
		} else {
			sort.Float64s(nums)
			f = analysis.Quantile(nums, 0.5)
		}
		fill, typ = numericFill(typ, f)
	case recommend.FillMode:
		m, ok := mode(vals)
		if !ok {
			return stepError("column has no non-null values")
		}
		fill = m
	case recommend.FillForward:
		var last any
		for k, v := range vals {
			if table.IsNull(v) {
				vals[k] = last
			} else {
				last = v
			}
		}
		r.t.SetColumn(i, typ, vals)
		r.logf("Filled nulls in '%s' using %s", col.Name, op.Strategy)
		return nil
	case recommend.FillConstant:
		fill, typ = constantFill(typ, op.Value)
	default:
		return stepError("unknown strategy " + op.Strategy)
	}
	for k, v := range vals {
		if table.IsNull(v) {
			vals[k] = fill
		} else if typ == table.TypeFloat && col.Type == table.TypeInt {
			vals[k], _ = table.Float(v)
		}
	}
	r.t.SetColumn(i, typ, vals)
	r.logf("Filled nulls in '%s' using %s (%d values)", col.Name, op.Strategy, nulls)
	return nil
}

// numericFill keeps integer columns integral when the fill value allows it.
func numericFill(typ table.StorageType, f float64) (any, table.StorageType) {
	if typ == table.TypeInt {
		if f == math.Trunc(f) {
			return int64(f), typ
		}
		return f, table.TypeFloat
	}
	return f, typ
}

func constantFill(typ table.StorageType, v any) (any, table.StorageType) {
	switch x := v.(type) {
	case float64:
		if typ.IsNumeric() {
			return numericFill(typ, x)
		}
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), typ
		}
		return x, typ
	case int:
		return numericFill(typ, float64(x))
	case string:
		if typ.IsNumeric() {
			if f, ok := analysis.ParseNumber(x); ok {
				return numericFill(typ, f)
			}
			return x, table.TypeObject
		}
		return x, typ
	}
	if typ.IsNumeric() {
		return v, table.TypeObject
	}
	return v, typ
}

// mode returns the most frequent non-null value; ties go to the first seen.
func mode(vals []any) (any, bool) {
	counts := map[string]int{}
	first := map[string]any{}
	var order []string
	for _, v := range vals {
		if table.IsNull(v) {
			continue
		}
		k := table.Key(v)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
			first[k] = v
		}
		counts[k]++
	}
	if len(order) == 0 {
		return nil, false
	}
	best := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return first[best], true
}

func (r *run) removeOutliers(i int, op recommend.RemoveOutliers) error {
	name := r.t.Columns[i].Name
	nums, ok := numbers(r.t.Values(i))
	if !ok {
		return stepError("outlier removal requires a numeric column")
	}
	if len(nums) == 0 {
		return stepError("column has no non-null values")
	}
	thr := op.Threshold
	if thr <= 0 {
		thr = recommend.DefaultThreshold(op.Method)
	}
	var keep func(float64) bool
	switch op.Method {
	case recommend.OutlierIQR:
		sort.Float64s(nums)
		q1, q3 := analysis.Quantile(nums, 0.25), analysis.Quantile(nums, 0.75)
		lo, hi := q1-thr*(q3-q1), q3+thr*(q3-q1)
		keep = func(v float64) bool { return v >= lo && v <= hi }
	case recommend.OutlierZScore:
		mean, std := meanStd(nums)
		if std == 0 {
			keep = func(float64) bool { return true }
		} else {
			keep = func(v float64) bool { return math.Abs((v-mean)/std) < thr }
		}
	default:
		return stepError("unknown method " + op.Method)
	}
	removed := r.t.Filter(func(row []any) bool {
		if table.IsNull(row[i]) {
			return true
		}
		f, _ := numberOf(row[i])
		return keep(f)
	})
	label := "IQR"
	if op.Method == recommend.OutlierZScore {
		label = "Z-score"
	}
	r.logf("Removed %d outliers from '%s' using %s method", removed, name, label)
	return nil
}

// meanStd returns the mean and sample standard deviation.
func meanStd(v []float64) (float64, float64) {
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	if len(v) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range v {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(v)-1))
}

func (r *run) convert(i int, op recommend.ConvertType) {
	col := r.t.Columns[i]
	vals := r.t.Values(i)
	failed := 0
	var typ table.StorageType
	switch op.Target {
	case recommend.ConvertNumeric:
		integral := true
		for k, v := range vals {
			if table.IsNull(v) {
				continue
			}
			f, ok := numberOf(v)
			if !ok {
				vals[k] = nil
				failed++
				continue
			}
			if f != math.Trunc(f) || math.Abs(f) >= 1<<53 {
				integral = false
			}
			vals[k] = f
		}
		typ = table.TypeFloat
		if integral {
			typ = table.TypeInt
			for k, v := range vals {
				if f, ok := v.(float64); ok {
					vals[k] = int64(f)
				}
			}
		}
	case recommend.ConvertDatetime:
		for k, v := range vals {
			if table.IsNull(v) {
				continue
			}
			tm, ok := timeOf(v)
			if !ok {
				vals[k] = nil
				failed++
				continue
			}
			vals[k] = tm
		}
		typ = table.TypeDatetime
	case recommend.ConvertString:
		for k, v := range vals {
			if !table.IsNull(v) {
				vals[k] = table.String(v)
			}
		}
		typ = table.TypeObject
	}
	r.t.SetColumn(i, typ, vals)
	if failed > 0 {
		r.logf("Converted '%s' to %s (%d values could not be parsed)", col.Name, op.Target, failed)
		return
	}
	r.logf("Converted '%s' to %s", col.Name, op.Target)
}
