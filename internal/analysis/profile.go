package analysis

import (
	"math"
	"sort"

	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// Options controls column classification. All thresholds are tunables.
type Options struct {
	// DatetimeThreshold is the share of non-null values that must parse as dates.
	DatetimeThreshold float64
	// NumericThreshold is the share of non-null values that must parse as numbers.
	NumericThreshold float64
	// CategoricalMaxRatio bounds unique/non-null for categorical columns.
	CategoricalMaxRatio float64
	// CategoricalMaxUnique bounds the distinct count for categorical columns.
	CategoricalMaxUnique int
	SampleValues         int
	TopValues            int
	// OutlierThreshold is the robust |z| cutoff used for NumericStats.Outliers.
	OutlierThreshold float64
}

// DefaultOptions returns the standard classification thresholds.
func DefaultOptions() Options {
	return Options{
		DatetimeThreshold:    0.9,
		NumericThreshold:     0.9,
		CategoricalMaxRatio:  0.5,
		CategoricalMaxUnique: 50,
		SampleValues:         5,
		TopValues:            8,
		OutlierThreshold:     3.5,
	}
}

// Profile inspects a table and returns its schema. It does not modify t.
func Profile(t *table.Table, opt Options) (*DataSchema, error) {
	if t == nil || t.Len() == 0 || t.Width() == 0 {
		rows, cols := 0, 0
		if t != nil {
			rows, cols = t.Len(), t.Width()
		}
		return nil, &EmptyTableError{Rows: rows, Columns: cols}
	}
	def := DefaultOptions()
	if opt.DatetimeThreshold <= 0 {
		opt.DatetimeThreshold = def.DatetimeThreshold
	}
	if opt.NumericThreshold <= 0 {
		opt.NumericThreshold = def.NumericThreshold
	}
	if opt.CategoricalMaxRatio <= 0 {
		opt.CategoricalMaxRatio = def.CategoricalMaxRatio
	}
	if opt.CategoricalMaxUnique <= 0 {
		opt.CategoricalMaxUnique = def.CategoricalMaxUnique
	}
	if opt.SampleValues <= 0 {
		opt.SampleValues = def.SampleValues
	}
	if opt.TopValues <= 0 {
		opt.TopValues = def.TopValues
	}
	if opt.OutlierThreshold <= 0 {
		opt.OutlierThreshold = def.OutlierThreshold
	}

	s := &DataSchema{Name: t.Name, RowCount: t.Len(), ColumnCount: t.Width()}
	s.Columns = make([]ColumnProfile, t.Width())
	for i, col := range t.Columns {
		s.Columns[i] = profileColumn(col, t.Values(i), opt)
	}
	s.MemoryUsageMB = estimateMemoryMB(t)
	return s, nil
}

func profileColumn(col table.Column, vals []any, opt Options) ColumnProfile {
	p := ColumnProfile{Name: col.Name, DeclaredType: string(col.Type)}
	counts := map[string]int{}
	var order []string
	var nums []float64
	nonNull, dtCnt, numCnt := 0, 0, 0
	for _, v := range vals {
		if table.IsNull(v) {
			p.NullCount++
			continue
		}
		nonNull++
		k := table.Key(v)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
		if len(p.SampleValues) < opt.SampleValues {
			p.SampleValues = append(p.SampleValues, table.Render(v))
		}
		if f, ok := table.Float(v); ok {
			numCnt++
			nums = append(nums, f)
			continue
		}
		if s, ok := v.(string); ok {
			// Numbers are never date candidates, so bare years stay numeric.
			if _, ok := ParseTime(s); ok {
				dtCnt++
				continue
			}
			if f, ok := ParseNumber(s); ok {
				numCnt++
				nums = append(nums, f)
			}
		}
	}
	p.UniqueCount = len(counts)
	if len(vals) > 0 {
		p.NullPercentage = round2(float64(p.NullCount) / float64(len(vals)) * 100)
	}

	ratio := func(n int) float64 {
		if nonNull == 0 {
			return 0
		}
		return float64(n) / float64(nonNull)
	}
	switch {
	case col.Type == table.TypeDatetime || ratio(dtCnt) >= opt.DatetimeThreshold:
		p.Kind = KindDatetime
	case col.Type.IsNumeric() || ratio(numCnt) >= opt.NumericThreshold:
		p.Kind = KindNumeric
		if len(nums) > 0 {
			p.Stats = numericStats(nums, opt.OutlierThreshold)
		}
	case nonNull > 0 && ratio(p.UniqueCount) <= opt.CategoricalMaxRatio && p.UniqueCount <= opt.CategoricalMaxUnique:
		p.Kind = KindCategorical
		p.TopValues = topValues(counts, order, opt.TopValues)
	default:
		p.Kind = KindText
	}
	p.IsNumeric = p.Kind == KindNumeric
	p.IsDatetime = p.Kind == KindDatetime
	p.IsCategorical = p.Kind == KindCategorical
	p.IsText = p.Kind == KindText
	return p
}

func numericStats(nums []float64, outlierThr float64) *NumericStats {
	st := &NumericStats{Min: math.Inf(1), Max: math.Inf(-1)}
	// Welford update
	var n int
	var mean, m2 float64
	for _, x := range nums {
		n++
		if x < st.Min {
			st.Min = x
		}
		if x > st.Max {
			st.Max = x
		}
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	st.Mean = mean
	if n > 1 {
		st.Std = math.Sqrt(m2 / float64(n-1))
	}
	sorted := make([]float64, len(nums))
	copy(sorted, nums)
	sort.Float64s(sorted)
	st.Q1 = Quantile(sorted, 0.25)
	st.Median = Quantile(sorted, 0.5)
	st.Q3 = Quantile(sorted, 0.75)
	if len(nums) >= 8 {
		median, mad := MedianMAD(nums)
		if mad > 0 {
			for _, v := range nums {
				if math.Abs(0.6745*(v-median)/mad) > outlierThr {
					st.Outliers++
				}
			}
		}
	}
	return st
}

func topValues(counts map[string]int, order []string, limit int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(order))
	for _, k := range order {
		tops = append(tops, CategoryCount{Value: k, Count: counts[k]})
	}
	sort.SliceStable(tops, func(i, j int) bool { return tops[i].Count > tops[j].Count })
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

// estimateMemoryMB approximates the in-memory footprint. Every cell costs at
// least 8 bytes, so the estimate grows with rows x columns.
func estimateMemoryMB(t *table.Table) float64 {
	bytes := 128
	for _, row := range t.Rows {
		for _, v := range row {
			bytes += 8
			if s, ok := v.(string); ok {
				bytes += 41 + len(s)
			}
		}
	}
	return round2(float64(bytes) / (1024 * 1024))
}
