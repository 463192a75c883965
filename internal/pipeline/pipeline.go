// Package pipeline applies processing recommendations to a table. Every apply
// starts from the original data and records one log line per step.
package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/filter"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// DefaultPreviewRows is the number of rows returned in a response preview.
const DefaultPreviewRows = 10

// ProcessedDataResponse summarizes the current state of a pipeline.
type ProcessedDataResponse struct {
	RowCount      int              `json:"row_count"`
	ColumnCount   int              `json:"column_count"`
	Columns       []string         `json:"columns"`
	Preview       []map[string]any `json:"preview"`
	ProcessingLog []string         `json:"processing_log"`
}

// Pipeline holds an immutable original table and the latest processed copy.
type Pipeline struct {
	original *table.Table
	current  *table.Table
	log      []string
	preview  int

	logger  *zap.Logger
	metrics metrics.Backend
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func WithMetrics(b metrics.Backend) Option { return func(p *Pipeline) { p.metrics = b } }

// WithPreviewRows overrides DefaultPreviewRows.
func WithPreviewRows(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.preview = n
		}
	}
}

// New wraps t. The pipeline keeps its own copy; later changes to t are not seen.
func New(t *table.Table, opts ...Option) *Pipeline {
	p := &Pipeline{original: t.Clone(), preview: DefaultPreviewRows, logger: zap.NewNop(), metrics: metrics.Nop{}}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.Named("pipeline")
	p.metrics = metrics.OrNop(p.metrics)
	p.current = p.original.Clone()
	return p
}

// Original returns the unmodified input table.
func (p *Pipeline) Original() *table.Table { return p.original }

// Current returns the processed table (the original after Reset).
func (p *Pipeline) Current() *table.Table { return p.current }

// Log returns a copy of the processing log of the last Apply.
func (p *Pipeline) Log() []string { return append([]string{}, p.log...) }

// Response describes the current table.
func (p *Pipeline) Response() ProcessedDataResponse {
	return ProcessedDataResponse{
		RowCount:      p.current.Len(),
		ColumnCount:   p.current.Width(),
		Columns:       p.current.ColumnNames(),
		Preview:       p.current.Records(p.preview),
		ProcessingLog: p.Log(),
	}
}

// Reset discards processing and returns to the original table.
func (p *Pipeline) Reset() ProcessedDataResponse {
	p.current = p.original.Clone()
	p.log = nil
	return p.Response()
}

// run is the state of one Apply.
type run struct {
	p   *Pipeline
	t   *table.Table
	log []string
}

func (r *run) logf(format string, args ...any) {
	r.log = append(r.log, fmt.Sprintf(format, args...))
}

func (r *run) done(stage, action string) {
	r.p.metrics.IncCounter(metrics.PipelineStepTotal, 1, metrics.Labels{"stage": stage, "action": action, "status": "ok"})
}

func (r *run) skip(stage, action, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log = append(r.log, msg)
	r.p.logger.Debug("step skipped", zap.String("stage", stage), zap.String("action", action), zap.String("detail", msg))
	r.p.metrics.IncCounter(metrics.PipelineStepTotal, 1, metrics.Labels{"stage": stage, "action": action, "status": "skipped"})
}

// Apply runs recs against a fresh copy of the original table. Steps that
// cannot be applied are skipped and logged; Apply itself never fails.
func (p *Pipeline) Apply(recs *recommend.ProcessingRecommendations) ProcessedDataResponse {
	r := &run{p: p, t: p.original.Clone()}
	if recs == nil {
		recs = &recommend.ProcessingRecommendations{}
	}

	sources := map[string]bool{}
	for _, f := range recs.FeatureEngineering {
		for _, s := range f.Sources {
			sources[s] = true
		}
	}

	// Drops first, except columns a feature still needs.
	var drops []string
	seen := map[string]bool{}
	for _, c := range recs.ColumnsToDrop {
		if !seen[c] {
			seen[c] = true
			drops = append(drops, c)
		}
	}
	var steps []recommend.CleaningStep
	for _, s := range recs.CleaningSteps {
		if _, ok := s.Op.(recommend.DropColumn); ok {
			if !seen[s.Column] {
				seen[s.Column] = true
				drops = append(drops, s.Column)
			}
			continue
		}
		steps = append(steps, s)
	}
	var deferred []string
	for _, c := range drops {
		if sources[c] {
			deferred = append(deferred, c)
			continue
		}
		r.dropColumn(c)
	}

	for _, s := range steps {
		r.clean(s)
	}
	for _, f := range recs.FeatureEngineering {
		r.feature(f)
	}
	for _, expr := range recs.FilteringCriteria {
		r.filter(expr)
	}
	for _, c := range deferred {
		r.dropColumn(c)
	}

	r.logf("Final dataset: %d rows, %d columns", r.t.Len(), r.t.Width())
	p.logger.Info("processing applied",
		zap.Int("rows", r.t.Len()),
		zap.Int("columns", r.t.Width()),
		zap.Int("steps", len(r.log)-1))
	p.current = r.t
	p.log = r.log
	return p.Response()
}

func (r *run) dropColumn(c string) {
	if !r.t.DropColumn(c) {
		r.skip("drop", string(recommend.ActionDropColumn), "Skipped drop_column on '%s': column not found", c)
		return
	}
	r.logf("Dropped column '%s'", c)
	r.done("drop", string(recommend.ActionDropColumn))
}

func (r *run) filter(expr string) {
	e, err := filter.Parse(expr)
	if err != nil {
		r.skip("filter", "filter", "Skipped filter '%s': %v", expr, err)
		return
	}
	idx := map[string]int{}
	for _, c := range e.Columns() {
		i := r.t.Index(c)
		if i < 0 {
			r.skip("filter", "filter", "Skipped filter '%s': column '%s' not found", expr, c)
			return
		}
		idx[c] = i
	}
	removed := r.t.Filter(func(row []any) bool {
		return e.Match(func(c string) any { return row[idx[c]] })
	})
	r.logf("Applied filter: %s (removed %d rows)", strings.TrimSpace(expr), removed)
	r.done("filter", "filter")
}
