package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

func ordersTable() *table.Table {
	cols := []table.Column{
		{Name: "date", Type: table.TypeObject},
		{Name: "revenue", Type: table.TypeFloat},
		{Name: "units", Type: table.TypeInt},
		{Name: "region", Type: table.TypeObject},
		{Name: "notes", Type: table.TypeObject},
	}
	rows := [][]any{
		{"2024-01-01", 100.0, int64(2), "North", nil},
		{"2024-01-02", nil, int64(4), "South", nil},
		{"2024-01-03", 300.0, int64(6), nil, "late"},
		{"2024-02-04", 400.0, int64(0), "North", nil},
		{"2024-02-05", 5000.0, int64(10), "East", nil},
		{"2024-03-06", 200.0, nil, "North", nil},
	}
	return table.New("orders.csv", cols, rows)
}

func TestApplyOrderAndLog(t *testing.T) {
	rec := metrics.NewRecorder()
	p := New(ordersTable(), WithMetrics(rec))
	recs := &recommend.ProcessingRecommendations{
		ColumnsToDrop: []string{"notes", "units"},
		CleaningSteps: []recommend.CleaningStep{
			{Column: "revenue", Op: recommend.FillNulls{Strategy: recommend.FillMedian}},
			{Column: "region", Op: recommend.FillNulls{Strategy: recommend.FillMode}},
			{Column: "ghost", Op: recommend.DropNulls{}},
		},
		FeatureEngineering: []recommend.FeatureEngineering{
			{NewColumn: "rev_per_unit", Operation: recommend.OpRatio, Sources: []string{"revenue", "units"}},
			{NewColumn: "month", Operation: recommend.OpExtractMonth, Sources: []string{"date"}},
		},
		FilteringCriteria: []string{"revenue < 1000", "bogus >"},
	}
	resp := p.Apply(recs)

	assert.Equal(t, []string{"date", "revenue", "region", "rev_per_unit", "month"}, resp.Columns)
	assert.Equal(t, 5, resp.RowCount)
	assert.Equal(t, 5, resp.ColumnCount)
	assert.Equal(t, []string{
		"Dropped column 'notes'",
		"Filled nulls in 'revenue' using median (1 values)",
		"Filled nulls in 'region' using mode (1 values)",
		"Skipped drop_nulls on 'ghost': column not found",
		"Created 'rev_per_unit' as ratio of 'revenue' to 'units'",
		"Created 'month' by extracting month from 'date'",
		"Applied filter: revenue < 1000 (removed 1 rows)",
		resp.ProcessingLog[7],
		"Dropped column 'units'",
		"Final dataset: 5 rows, 5 columns",
	}, resp.ProcessingLog)
	assert.Contains(t, resp.ProcessingLog[7], "Skipped filter 'bogus >'")

	cur := p.Current()
	rev := cur.Values(cur.Index("revenue"))
	assert.Equal(t, 300.0, rev[1])
	assert.Equal(t, "North", cur.Rows[2][cur.Index("region")])
	ratio := cur.Values(cur.Index("rev_per_unit"))
	assert.Equal(t, 50.0, ratio[0])
	assert.Nil(t, ratio[3], "division by zero yields null")
	assert.Nil(t, ratio[4], "null source yields null")
	assert.Equal(t, int64(2), cur.Rows[3][cur.Index("month")])

	assert.Equal(t, 2.0, rec.Counter(metrics.PipelineStepTotal, metrics.Labels{"stage": "drop", "action": "drop_column", "status": "ok"}))
	assert.Equal(t, 1.0, rec.Counter(metrics.PipelineStepTotal, metrics.Labels{"stage": "filter", "action": "filter", "status": "skipped"}))

	orig := p.Original()
	assert.Equal(t, 5, orig.Width())
	assert.Nil(t, orig.Rows[1][1], "original is untouched")
}

func TestApplyStartsFromOriginal(t *testing.T) {
	p := New(ordersTable())
	recs := &recommend.ProcessingRecommendations{FilteringCriteria: []string{"region == 'North'"}}
	first := p.Apply(recs)
	second := p.Apply(recs)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, second.RowCount)
}

func TestResetIdempotent(t *testing.T) {
	src := ordersTable()
	p := New(src)
	p.Apply(&recommend.ProcessingRecommendations{ColumnsToDrop: []string{"notes"}, FilteringCriteria: []string{"units > 3"}})
	a := p.Reset()
	b := p.Reset()
	assert.Equal(t, a, b)
	assert.True(t, p.Current().Equal(src))
	assert.Empty(t, a.ProcessingLog)
	assert.Equal(t, 6, a.RowCount)
}

func TestRemoveOutliers(t *testing.T) {
	p := New(ordersTable())
	resp := p.Apply(&recommend.ProcessingRecommendations{CleaningSteps: []recommend.CleaningStep{
		{Column: "revenue", Op: recommend.RemoveOutliers{Method: recommend.OutlierIQR, Threshold: 1.5}},
	}})
	assert.Equal(t, 5, resp.RowCount, "the 5000 row is removed and the null row kept")
	assert.Equal(t, "Removed 1 outliers from 'revenue' using IQR method", resp.ProcessingLog[0])

	resp = p.Apply(&recommend.ProcessingRecommendations{CleaningSteps: []recommend.CleaningStep{
		{Column: "region", Op: recommend.RemoveOutliers{Method: recommend.OutlierZScore, Threshold: 3}},
	}})
	assert.Contains(t, resp.ProcessingLog[0], "Skipped remove_outliers on 'region'")
	assert.Equal(t, 6, resp.RowCount)
}

func TestConvertAndFill(t *testing.T) {
	p := New(ordersTable())
	p.Apply(&recommend.ProcessingRecommendations{CleaningSteps: []recommend.CleaningStep{
		{Column: "date", Op: recommend.ConvertType{Target: recommend.ConvertDatetime}},
		{Column: "units", Op: recommend.FillNulls{Strategy: recommend.FillMean}},
		{Column: "notes", Op: recommend.FillNulls{Strategy: recommend.FillConstant, Value: "none"}},
		{Column: "region", Op: recommend.FillNulls{Strategy: recommend.FillForward}},
	}})
	cur := p.Current()
	assert.Equal(t, table.TypeDatetime, cur.Columns[0].Type)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cur.Rows[0][0])
	assert.Equal(t, table.TypeFloat, cur.Columns[2].Type, "mean 4.4 turns the int column into floats")
	assert.Equal(t, 4.4, cur.Rows[5][2])
	assert.Equal(t, 2.0, cur.Rows[0][2])
	assert.Equal(t, "none", cur.Rows[0][4])
	assert.Equal(t, "South", cur.Rows[2][3])

	p.Apply(&recommend.ProcessingRecommendations{CleaningSteps: []recommend.CleaningStep{
		{Column: "region", Op: recommend.FillNulls{Strategy: recommend.FillMedian}},
	}})
	assert.Contains(t, p.Log()[0], "median requires a numeric column")
}

func TestFeatureOperations(t *testing.T) {
	p := New(ordersTable())
	p.Apply(&recommend.ProcessingRecommendations{FeatureEngineering: []recommend.FeatureEngineering{
		{NewColumn: "total", Operation: recommend.OpSum, Sources: []string{"revenue", "units"}},
		{NewColumn: "avg", Operation: recommend.OpAverage, Sources: []string{"revenue", "units"}},
		{NewColumn: "label", Operation: recommend.OpConcatenate, Sources: []string{"region", "date"}},
		{NewColumn: "year", Operation: recommend.OpExtractYear, Sources: []string{"date"}},
		{NewColumn: "band", Operation: recommend.OpBinNumeric, Sources: []string{"units"}, Parameters: &recommend.FeatureParams{Bins: 2, Labels: []string{"low", "high"}}},
		{NewColumn: "revenue", Operation: recommend.OpSum, Sources: []string{"units", "units"}},
		{NewColumn: "bad", Operation: recommend.OpSum, Sources: []string{"region", "units"}},
	}})
	cur := p.Current()
	row := func(r int, c string) any { return cur.Rows[r][cur.Index(c)] }
	assert.Equal(t, 102.0, row(0, "total"))
	assert.Equal(t, 4.0, row(1, "total"), "nulls are skipped")
	assert.Equal(t, 51.0, row(0, "avg"))
	assert.Equal(t, "North 2024-01-01", row(0, "label"))
	assert.Equal(t, " 2024-01-03", row(2, "label"))
	assert.Equal(t, int64(2024), row(0, "year"))
	assert.Equal(t, "low", row(0, "band"))
	assert.Equal(t, "high", row(4, "band"))
	assert.Nil(t, row(5, "band"))
	assert.False(t, cur.Has("bad"))
	log := p.Log()
	assert.Contains(t, log, "Skipped feature 'revenue': column already exists")
	assert.Contains(t, log, "Created 'band' by binning 'units' into 2 bins")
}

func TestResponseJSON(t *testing.T) {
	p := New(ordersTable(), WithPreviewRows(2))
	resp := p.Apply(nil)
	require.Len(t, resp.Preview, 2)
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"processing_log":["Final dataset: 6 rows, 5 columns"]`)
}
