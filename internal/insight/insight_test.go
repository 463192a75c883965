package insight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// fakeRuntime replays scripted replies; a nil reply blocks until the context ends.
type fakeRuntime struct {
	mu      sync.Mutex
	replies []any
	calls   int
	last    ai.GenerateRequest
}

func (f *fakeRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.last = req
	f.mu.Unlock()
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	switch r := f.replies[i].(type) {
	case nil:
		<-ctx.Done()
		return nil, fmt.Errorf("http request: %w", ctx.Err())
	case error:
		return nil, r
	case string:
		return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: r}}}}, nil
	}
	panic("unexpected reply")
}

func (f *fakeRuntime) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func salesSchema(t *testing.T) *analysis.DataSchema {
	t.Helper()
	cols := []table.Column{
		{Name: "date", Type: table.TypeObject},
		{Name: "revenue", Type: table.TypeFloat},
		{Name: "region", Type: table.TypeObject},
	}
	regions := []string{"North", "South", "East", "West"}
	var rows [][]any
	for i := 0; i < 10; i++ {
		var rev any = float64(100 + i*10)
		if i == 3 {
			rev = nil
		}
		rows = append(rows, []any{fmt.Sprintf("2024-01-%02d", i+1), rev, regions[i%4]})
	}
	s, err := analysis.Profile(table.New("sales.csv", cols, rows), analysis.DefaultOptions())
	require.NoError(t, err)
	return s
}

const goodProcessing = "Here you go:\n```json\n" + `{
  "columns_to_drop": [],
  "columns_to_keep": ["date", "revenue", "region"],
  "cleaning_steps": [{"column_name": "revenue", "action": "fill_nulls", "reason": "gap", "parameters": {"method": "mean"}}],
  "feature_engineering": [{"new_column_name": "year", "operation": "extract_year", "source_columns": ["date"], "description": "year"}],
  "filtering_criteria": ["revenue >= 0"],
  "explanation": "fill then derive",
  "insight": "Revenue climbs steadily."
}` + "\n```\nLet me know!"

func newAugmented(rt ai.Runtime, opts ...Option) (*Augmented, *metrics.Recorder) {
	rec := metrics.NewRecorder()
	opts = append([]Option{WithLogger(zap.NewNop()), WithMetrics(rec)}, opts...)
	return NewAugmented(Config{Model: "test/model", Timeout: time.Second}, rt, opts...), rec
}

func TestNewWithoutRuntimeIsFallback(t *testing.T) {
	s := salesSchema(t)
	g := New(Config{}, nil)
	require.IsType(t, Fallback{}, g)
	out := g.Processing(context.Background(), s, "revenue trends by region")
	assert.Equal(t, SourceFallback, out.Source)
	assert.Empty(t, out.FallbackReason)
	assert.Equal(t, recommend.Fallback{}.Processing(s, "revenue trends by region"), out.Result)
}

func TestAugmentedAcceptsValidResponse(t *testing.T) {
	s := salesSchema(t)
	rt := &fakeRuntime{replies: []any{goodProcessing}}
	g, rec := newAugmented(rt)

	out := g.Processing(context.Background(), s, "revenue trends")
	require.Equal(t, SourceModel, out.Source, out.FallbackReason)
	assert.Equal(t, "Revenue climbs steadily.", out.Insight)
	require.Len(t, out.Result.CleaningSteps, 1)
	assert.Equal(t, recommend.FillNulls{Strategy: recommend.FillMean}, out.Result.CleaningSteps[0].Op)
	assert.Equal(t, []string{"revenue >= 0"}, out.Result.FilteringCriteria)
	assert.Zero(t, rec.Total(metrics.InsightFallbackTotal))
	assert.Len(t, rec.Samples(metrics.InsightModelSeconds, metrics.Labels{"op": "processing", "status": "ok"}), 1)

	require.Len(t, rt.last.Messages, 2)
	assert.Equal(t, "system", rt.last.Messages[0].Role)
	assert.Contains(t, rt.last.Messages[1].Content, "revenue trends")
	assert.Contains(t, rt.last.Messages[1].Content, "[SCHEMA]")
	assert.True(t, rt.last.JSONMode)
}

func TestAugmentedDegradesWithoutError(t *testing.T) {
	s := salesSchema(t)
	cases := []struct {
		name   string
		reply  any
		reason string
		prose  string
	}{
		{"runtime error", &ai.ServerError{APIError: &ai.APIError{StatusCode: 502}}, ReasonRuntimeError, ""},
		{"empty", "", ReasonEmpty, ""},
		{"no json", "I cannot help with that.", ReasonNoJSON, ""},
		{"malformed", `{"columns_to_drop": [}`, ReasonDecode, ""},
		{"missing field", `{"columns_to_drop": [], "columns_to_keep": [], "cleaning_steps": [], "feature_engineering": [], "explanation": "x", "insight": "partial"}`, ReasonMissingField, "partial"},
		{"missing nested field", `{"columns_to_drop": [], "columns_to_keep": [], "cleaning_steps": [{"column_name": "revenue"}], "feature_engineering": [], "filtering_criteria": [], "explanation": "x"}`, ReasonMissingField, ""},
		{"unknown action", `{"columns_to_drop": [], "columns_to_keep": [], "cleaning_steps": [{"column_name": "revenue", "action": "teleport"}], "feature_engineering": [], "filtering_criteria": [], "explanation": "x"}`, ReasonDecode, ""},
		{"unknown column", `{"columns_to_drop": ["ghost"], "columns_to_keep": [], "cleaning_steps": [], "feature_engineering": [], "filtering_criteria": [], "explanation": "x"}`, ReasonValidation, ""},
		{"bad filter", `{"columns_to_drop": [], "columns_to_keep": [], "cleaning_steps": [], "feature_engineering": [], "filtering_criteria": ["revenue >"], "explanation": "x"}`, ReasonValidation, ""},
	}
	want := recommend.Fallback{}.Processing(s, "goal text here")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, rec := newAugmented(&fakeRuntime{replies: []any{tc.reply}})
			out := g.Processing(context.Background(), s, "goal text here")
			assert.Equal(t, SourceFallback, out.Source)
			assert.Equal(t, tc.reason, out.FallbackReason)
			assert.Equal(t, tc.prose, out.Insight)
			assert.Equal(t, want, out.Result)
			assert.Equal(t, 1.0, rec.Counter(metrics.InsightFallbackTotal, metrics.Labels{"op": "processing", "reason": tc.reason}))
		})
	}
}

func TestAugmentedTimeout(t *testing.T) {
	s := salesSchema(t)
	g := NewAugmented(Config{Model: "m", Timeout: 20 * time.Millisecond}, &fakeRuntime{replies: []any{nil}})
	start := time.Now()
	out := g.Insights(context.Background(), s)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, SourceFallback, out.Source)
	assert.Equal(t, ReasonTimeout, out.FallbackReason)
	assert.Equal(t, recommend.Fallback{}.Insights(s), out.Result)
}

func TestAugmentedCallerCancel(t *testing.T) {
	s := salesSchema(t)
	g := NewAugmented(Config{Model: "m", Timeout: time.Minute}, &fakeRuntime{replies: []any{nil}})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	out := g.Insights(ctx, s)
	assert.Equal(t, ReasonCanceled, out.FallbackReason)
	assert.NotNil(t, out.Result)
}

func TestAugmentedVisualizationNormalizesCompatibleTypes(t *testing.T) {
	s := salesSchema(t)
	reply := `{"charts": [{"chart_type": "bar", "title": "", "description": "d", "x_axis": "region", "y_axis": ["revenue"], "compatible_types": ["heatmap"], "reasoning": "r"}], "summary": "s"}`
	g, _ := newAugmented(&fakeRuntime{replies: []any{reply}})
	out := g.Visualization(context.Background(), s, "revenue by region")
	require.Equal(t, SourceModel, out.Source, out.FallbackReason)
	c := out.Result.Charts[0]
	assert.NotContains(t, c.CompatibleTypes, chart.Heatmap)
	assert.Contains(t, c.CompatibleTypes, chart.Pie)
	assert.Equal(t, "Revenue by Region", c.Title)
}

func TestAugmentedVisualizationRejectsMultiSeriesPie(t *testing.T) {
	s := salesSchema(t)
	reply := `{"charts": [{"chart_type": "pie", "x_axis": "region", "y_axis": ["revenue", "revenue"]}], "summary": "s"}`
	g, _ := newAugmented(&fakeRuntime{replies: []any{reply, `{"charts": [], "summary": "none"}`}})
	out := g.Visualization(context.Background(), s, "revenue by region")
	assert.Equal(t, ReasonValidation, out.FallbackReason)
	assert.Equal(t, recommend.Fallback{}.Visualization(s, "revenue by region"), out.Result)

	out = g.Visualization(context.Background(), s, "revenue by region")
	assert.Equal(t, ReasonValidation, out.FallbackReason)
}

func TestAugmentedCachesValidatedOutputOnly(t *testing.T) {
	s := salesSchema(t)
	rt := &fakeRuntime{replies: []any{goodProcessing}}
	g, rec := newAugmented(rt, WithCache(NewMemoryCache(0)))

	first := g.Processing(context.Background(), s, "revenue trends")
	second := g.Processing(context.Background(), s, "revenue trends")
	require.Equal(t, SourceModel, first.Source)
	require.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.Insight, second.Insight)
	assert.Equal(t, 1, rt.callCount())
	assert.Equal(t, 1.0, rec.Counter(metrics.InsightCacheTotal, metrics.Labels{"op": "processing", "result": "hit"}))

	// a different goal is a different key
	g.Processing(context.Background(), s, "something else entirely")
	assert.Equal(t, 2, rt.callCount())

	bad := &fakeRuntime{replies: []any{"no json"}}
	g2, _ := newAugmented(bad, WithCache(NewMemoryCache(0)))
	g2.Insights(context.Background(), s)
	g2.Insights(context.Background(), s)
	assert.Equal(t, 2, bad.callCount())
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))
	v, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client, time.Hour)
	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"result":{}}`)))
	assert.True(t, mr.Exists(RedisKeyPrefix+"k"))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"result":{}}`, string(v))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAugmentedWithRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client, err := DialRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	s := salesSchema(t)
	rt := &fakeRuntime{replies: []any{goodProcessing}}
	g, _ := newAugmented(rt, WithCache(NewRedisCache(client, time.Hour)))
	require.Equal(t, SourceModel, g.Processing(context.Background(), s, "revenue trends").Source)
	out := g.Processing(context.Background(), s, "revenue trends")
	assert.Equal(t, SourceCache, out.Source)
	assert.Equal(t, 1, rt.callCount())
	require.Len(t, out.Result.FeatureEngineering, 1)
	assert.Equal(t, "year", out.Result.FeatureEngineering[0].NewColumn)
}

func TestRedisCacheReadErrorFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	s := salesSchema(t)
	rt := &fakeRuntime{replies: []any{goodProcessing}}
	g, _ := newAugmented(rt, WithCache(NewRedisCache(client, time.Hour)))
	out := g.Processing(context.Background(), s, "revenue trends")
	assert.Equal(t, SourceModel, out.Source)
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in, want string
		err      error
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`, nil},
		{"```\n{\"a\":1}\n```", `{"a":1}`, nil},
		{"```python\nprint(1)\n```\nthen {\"b\": \"}\"} trailing }", `{"b": "}"}`, nil},
		{"prefix {\"a\": {\"b\": [1, 2]}} suffix", `{"a": {"b": [1, 2]}}`, nil},
		{`{"s": "escaped \" brace {"}`, `{"s": "escaped \" brace {"}`, nil},
		{"nothing here", "", ErrNoJSON},
		{"{ unbalanced", "", ErrNoJSON},
	}
	for _, tc := range cases {
		got, err := ExtractJSON(tc.in)
		if tc.err != nil {
			assert.True(t, errors.Is(err, tc.err), "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestCacheKeyStable(t *testing.T) {
	s := salesSchema(t)
	a, err := CacheKey("processing", "m", s, "goal")
	require.NoError(t, err)
	b, _ := CacheKey("processing", "m", s, "goal")
	c, _ := CacheKey("processing", "other", s, "goal")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "processing:")
}
