package dashboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/insight"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/parser"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/session"
)

const goal = "show revenue trends by region over time"

func writeSales(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,revenue,units,region\n")
	regions := []string{"North", "South", "East"}
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "2024-01-%02d,%d,%d,%s\n", i+1, 100+i*25, i%4+1, regions[i%3])
	}
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newService(t *testing.T) (*Service, *metrics.Recorder) {
	t.Helper()
	rec := metrics.NewRecorder()
	svc := New(session.NewStore(session.WithMetrics(rec)), insight.Fallback{}, Options{
		Parser:  parser.DefaultOptions(),
		Profile: analysis.DefaultOptions(),
		Metrics: rec,
	})
	return svc, rec
}

func upload(t *testing.T, svc *Service) string {
	t.Helper()
	res, err := svc.Upload(writeSales(t))
	require.NoError(t, err)
	return res.Session.ID
}

func TestUpload(t *testing.T) {
	svc, _ := newService(t)
	res, err := svc.Upload(writeSales(t))
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", res.Session.FileName)
	assert.Equal(t, "csv", res.Session.FileType)
	assert.Equal(t, 12, res.Session.RowCount)
	assert.Equal(t, 4, res.Schema.ColumnCount)
	assert.Len(t, res.Preview.Preview, 10)
	assert.Len(t, svc.Sessions(), 1)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	svc, _ := newService(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	_, err := svc.Upload(path)
	assert.ErrorIs(t, err, parser.ErrUnsupported)
	assert.Empty(t, svc.Sessions())
}

func TestSetGoalValidation(t *testing.T) {
	svc, _ := newService(t)
	id := upload(t, svc)

	_, err := svc.SetGoal(context.Background(), id, "short")
	var gle *session.GoalLengthError
	require.ErrorAs(t, err, &gle)

	_, err = svc.SetGoal(context.Background(), "missing", goal)
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = svc.Visualize(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoGoal)

	_, err = svc.Apply(id, nil)
	assert.ErrorIs(t, err, ErrNoRecommendations)
}

func TestWorkflow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	id := upload(t, svc)

	rec, err := svc.SetGoal(ctx, id, "  "+goal+"  ")
	require.NoError(t, err)
	assert.Equal(t, insight.SourceFallback, rec.Source)
	require.NotNil(t, rec.Recommendations)
	assert.Equal(t, goal, svc.Sessions()[0].Goal)

	resp, err := svc.Apply(id, nil)
	require.NoError(t, err)
	require.NotEmpty(t, resp.ProcessingLog)
	assert.True(t, strings.HasPrefix(resp.ProcessingLog[len(resp.ProcessingLog)-1], "Final dataset:"))

	viz, err := svc.Visualize(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, viz.Charts)
	charts, err := svc.Charts(id)
	require.NoError(t, err)
	assert.Len(t, charts, len(viz.Charts))
	for _, c := range charts {
		assert.Contains(t, c.CompatibleTypes, c.Type)
	}

	ins, err := svc.Insights(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, ins.Result)
	assert.NotEmpty(t, ins.Result.Summary)
}

func TestConvertChart(t *testing.T) {
	svc, rec := newService(t)
	id := upload(t, svc)

	c, err := svc.CreateChart(id, chart.Spec{Type: chart.Bar, X: "region", Y: []string{"revenue", "units"}})
	require.NoError(t, err)

	_, err = svc.ConvertChart(id, c.ID, chart.Pie)
	var ic *chart.IncompatibleConversionError
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, chart.ReasonMultipleSeries, ic.Reason)
	assert.Equal(t, 1.0, rec.Counter(metrics.ChartConversionTotal,
		metrics.Labels{"from": "bar", "to": "pie", "status": chart.ReasonMultipleSeries}))

	unchanged, err := svc.Chart(id, c.ID)
	require.NoError(t, err)
	assert.Equal(t, chart.Bar, unchanged.Type)

	got, err := svc.ConvertChart(id, c.ID, chart.HorizontalBar)
	require.NoError(t, err)
	assert.Equal(t, chart.HorizontalBar, got.Type)
	assert.Equal(t, 1.0, rec.Counter(metrics.ChartConversionTotal,
		metrics.Labels{"from": "bar", "to": "horizontal_bar", "status": "ok"}))

	compat, err := svc.Compat(id, c.ID)
	require.NoError(t, err)
	assert.True(t, compat.Allows(chart.Bar))
	assert.False(t, compat.Allows(chart.Pie))

	_, err = svc.ConvertChart(id, "missing", chart.Line)
	assert.ErrorIs(t, err, session.ErrChartNotFound)
}

func TestChartSnapshotsAreIsolated(t *testing.T) {
	svc, _ := newService(t)
	id := upload(t, svc)
	c, err := svc.CreateChart(id, chart.Spec{Type: chart.Bar, X: "region", Y: []string{"revenue"}})
	require.NoError(t, err)
	region := c.Data[0]["region"]
	c.YAxis[0] = "tampered"
	c.Type = chart.Pie
	c.Configuration["aggregation"] = "tampered"
	c.Data[0]["region"] = "tampered"
	c.Shape.YKinds[0] = analysis.KindText

	got, err := svc.Chart(id, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"revenue"}, got.YAxis)
	assert.Equal(t, chart.Bar, got.Type)
	assert.Equal(t, "sum", got.Configuration["aggregation"])
	assert.Equal(t, region, got.Data[0]["region"])
	assert.Equal(t, []analysis.Kind{analysis.KindNumeric}, got.Shape.YKinds)
}

func TestApplyEmptiesAndReset(t *testing.T) {
	svc, _ := newService(t)
	id := upload(t, svc)

	resp, err := svc.Apply(id, &recommend.ProcessingRecommendations{FilteringCriteria: []string{"revenue > 1000000"}})
	require.NoError(t, err)
	assert.Zero(t, resp.RowCount)

	_, err = svc.CreateChart(id, chart.Spec{Type: chart.Bar, X: "region", Y: []string{"revenue"}})
	var empty *analysis.EmptyTableError
	require.ErrorAs(t, err, &empty)

	resp, err = svc.Reset(id)
	require.NoError(t, err)
	assert.Equal(t, 12, resp.RowCount)
	assert.Empty(t, resp.ProcessingLog)

	_, err = svc.CreateChart(id, chart.Spec{Type: chart.Bar, X: "region", Y: []string{"revenue"}})
	assert.NoError(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	id := upload(t, svc)
	_, err := svc.SetGoal(ctx, id, goal)
	require.NoError(t, err)
	_, err = svc.Apply(id, nil)
	require.NoError(t, err)
	viz, err := svc.Visualize(ctx, id)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "dashboard.json")
	exp, err := svc.SaveExport(id, path)
	require.NoError(t, err)

	loaded, err := LoadExport(path)
	require.NoError(t, err)
	assert.Equal(t, ExportVersion, loaded.Version)
	assert.Equal(t, id, loaded.Session.ID)
	assert.Equal(t, goal, loaded.Session.Goal)
	assert.Len(t, loaded.Charts, len(viz.Charts))
	assert.Equal(t, exp.ProcessingLog, loaded.ProcessingLog)
	require.NotNil(t, loaded.Processing)
	assert.Equal(t, 4, loaded.Schema.ColumnCount)

	_, err = LoadExport(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeleteSession(t *testing.T) {
	svc, rec := newService(t)
	id := upload(t, svc)
	c, err := svc.CreateChart(id, chart.Spec{Type: chart.Bar, X: "region", Y: []string{"revenue"}})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteChart(id, c.ID))
	assert.ErrorIs(t, svc.DeleteChart(id, c.ID), session.ErrChartNotFound)

	require.NoError(t, svc.DeleteSession(id))
	assert.Empty(t, svc.Sessions())
	_, err = svc.Charts(id)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteSession(id), session.ErrNotFound)
	assert.Equal(t, 1.0, rec.Counter(metrics.SessionOperationsTotal, metrics.Labels{"op": "delete", "status": "ok"}))
}
