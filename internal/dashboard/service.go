// Package dashboard wires parsing, profiling, recommendations, the processing
// pipeline and charts into the upload → goal → process → visualize workflow.
// It is transport-agnostic: the CLI drives it directly.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/insight"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/parser"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/session"
)

var (
	// ErrNoGoal is returned when an operation needs a goal that was never set.
	ErrNoGoal = errors.New("no analysis goal set for this session")
	// ErrNoRecommendations is returned by Apply when nothing was recommended yet.
	ErrNoRecommendations = errors.New("no processing recommendations; set a goal first")
)

// Options configures a Service.
type Options struct {
	Parser      parser.Options
	Profile     analysis.Options
	PreviewRows int
	Logger      *zap.Logger
	Metrics     metrics.Backend
}

// Service is the dashboard facade. It is safe for concurrent use; operations
// on one session are serialized by the store.
type Service struct {
	store   *session.Store
	gen     insight.Generator
	opts    Options
	logger  *zap.Logger
	metrics metrics.Backend
}

func New(store *session.Store, gen insight.Generator, opts Options) *Service {
	if gen == nil {
		gen = insight.Fallback{}
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = pipeline.DefaultPreviewRows
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		gen:     gen,
		opts:    opts,
		logger:  logger.Named("dashboard"),
		metrics: metrics.OrNop(opts.Metrics),
	}
}

// UploadResult describes a freshly created session.
type UploadResult struct {
	Session session.Meta                   `json:"session"`
	Schema  *analysis.DataSchema           `json:"schema"`
	Preview pipeline.ProcessedDataResponse `json:"preview"`
}

// Upload parses and profiles a file and opens a session for it.
func (s *Service) Upload(path string) (*UploadResult, error) {
	t, err := parser.ParseFile(path, s.opts.Parser)
	if err != nil {
		return nil, err
	}
	schema, err := analysis.Profile(t, s.opts.Profile)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(t,
		pipeline.WithLogger(s.logger),
		pipeline.WithMetrics(s.metrics),
		pipeline.WithPreviewRows(s.opts.PreviewRows))
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	meta := s.store.Create(t.Name, fileType, p, schema)
	s.logger.Info("session created",
		zap.String("session_id", meta.ID),
		zap.String("file", meta.FileName),
		zap.Int("rows", schema.RowCount),
		zap.Int("columns", schema.ColumnCount))
	return &UploadResult{Session: meta, Schema: schema, Preview: p.Response()}, nil
}

// RecommendResult carries processing recommendations and their provenance.
type RecommendResult struct {
	Recommendations *recommend.ProcessingRecommendations `json:"recommendations"`
	Insight         string                               `json:"insight,omitempty"`
	Source          insight.Source                       `json:"source"`
	FallbackReason  string                               `json:"fallback_reason,omitempty"`
}

// SetGoal validates and stores the goal, then recommends processing steps for
// the original dataset.
func (s *Service) SetGoal(ctx context.Context, id, goal string) (*RecommendResult, error) {
	goal, err := session.ValidateGoal(goal)
	if err != nil {
		return nil, err
	}
	var res *RecommendResult
	err = s.store.With(id, func(sess *session.Session) error {
		out := s.gen.Processing(ctx, sess.Schema, goal)
		sess.Goal = goal
		sess.Processing = out.Result
		sess.Notes["processing"] = out.Insight
		res = &RecommendResult{Recommendations: out.Result, Insight: out.Insight, Source: out.Source, FallbackReason: out.FallbackReason}
		return nil
	})
	return res, err
}

// Apply runs recs (or the stored recommendations when recs is nil) against
// the original table and re-profiles the result.
func (s *Service) Apply(id string, recs *recommend.ProcessingRecommendations) (pipeline.ProcessedDataResponse, error) {
	var resp pipeline.ProcessedDataResponse
	err := s.store.With(id, func(sess *session.Session) error {
		if recs == nil {
			recs = sess.Processing
		}
		if recs == nil {
			return ErrNoRecommendations
		}
		resp = sess.Pipeline.Apply(recs)
		processed, err := analysis.Profile(sess.Pipeline.Current(), s.opts.Profile)
		if err != nil {
			// every row filtered away: visualization needs a new Apply or Reset
			s.logger.Warn("processed dataset cannot be profiled", zap.String("session_id", id), zap.Error(err))
			processed = nil
		}
		sess.Processing = recs
		sess.ProcessedSchema = processed
		return nil
	})
	return resp, err
}

// Reset restores the original table and clears the processing log.
func (s *Service) Reset(id string) (pipeline.ProcessedDataResponse, error) {
	var resp pipeline.ProcessedDataResponse
	err := s.store.With(id, func(sess *session.Session) error {
		resp = sess.Pipeline.Reset()
		sess.ProcessedSchema = sess.Schema
		return nil
	})
	return resp, err
}

// Processed returns the current table view and log.
func (s *Service) Processed(id string) (pipeline.ProcessedDataResponse, error) {
	var resp pipeline.ProcessedDataResponse
	err := s.store.With(id, func(sess *session.Session) error {
		resp = sess.Pipeline.Response()
		return nil
	})
	return resp, err
}

// VisualizeResult carries chart recommendations and the charts built from them.
type VisualizeResult struct {
	Recommendations *recommend.VisualizationRecommendations `json:"recommendations"`
	Charts          []*chart.Chart                          `json:"charts"`
	Skipped         []string                                `json:"skipped,omitempty"`
	Insight         string                                  `json:"insight,omitempty"`
	Source          insight.Source                          `json:"source"`
	FallbackReason  string                                  `json:"fallback_reason,omitempty"`
}

// Visualize recommends charts for the processed dataset and materializes them.
// Charts are committed to the session only after every recommendation was tried.
func (s *Service) Visualize(ctx context.Context, id string) (*VisualizeResult, error) {
	var res *VisualizeResult
	err := s.store.With(id, func(sess *session.Session) error {
		if sess.Goal == "" {
			return ErrNoGoal
		}
		schema := sess.ProcessedSchema
		if schema == nil {
			return &analysis.EmptyTableError{Rows: sess.Pipeline.Current().Len(), Columns: sess.Pipeline.Current().Width()}
		}
		out := s.gen.Visualization(ctx, schema, sess.Goal)
		res = &VisualizeResult{Recommendations: out.Result, Insight: out.Insight, Source: out.Source, FallbackReason: out.FallbackReason}
		var built []*chart.Chart
		for _, rec := range out.Result.Charts {
			c, err := chart.Create(sess.Pipeline.Current(), schema, rec.Spec())
			if err != nil {
				s.logger.Warn("recommended chart skipped", zap.String("chart_type", string(rec.Type)), zap.Error(err))
				res.Skipped = append(res.Skipped, fmt.Sprintf("%s %s: %v", rec.Type, rec.X, err))
				continue
			}
			built = append(built, c)
		}
		sess.Visualization = out.Result
		sess.Notes["visualization"] = out.Insight
		for _, c := range built {
			sess.AddChart(c)
			res.Charts = append(res.Charts, snapshot(c))
		}
		return nil
	})
	return res, err
}

// Insights describes the original dataset.
func (s *Service) Insights(ctx context.Context, id string) (insight.InsightsOutcome, error) {
	var out insight.InsightsOutcome
	err := s.store.With(id, func(sess *session.Session) error {
		out = s.gen.Insights(ctx, sess.Schema)
		sess.Insights = out.Result
		sess.Notes["insights"] = out.Insight
		return nil
	})
	return out, err
}

// CreateChart builds a chart over the processed table.
func (s *Service) CreateChart(id string, spec chart.Spec) (*chart.Chart, error) {
	var out *chart.Chart
	err := s.store.With(id, func(sess *session.Session) error {
		schema := sess.ProcessedSchema
		if schema == nil {
			return &analysis.EmptyTableError{Rows: sess.Pipeline.Current().Len(), Columns: sess.Pipeline.Current().Width()}
		}
		c, err := chart.Create(sess.Pipeline.Current(), schema, spec)
		if err != nil {
			return err
		}
		sess.AddChart(c)
		out = snapshot(c)
		return nil
	})
	return out, err
}

// ConvertChart changes a chart's type. On error the chart is unchanged.
func (s *Service) ConvertChart(id, chartID string, to chart.Type) (*chart.Chart, error) {
	var out *chart.Chart
	err := s.store.With(id, func(sess *session.Session) error {
		c, err := sess.Chart(chartID)
		if err != nil {
			return err
		}
		from := c.Type
		if err := c.Convert(to); err != nil {
			s.metrics.IncCounter(metrics.ChartConversionTotal, 1, metrics.Labels{"from": string(from), "to": string(to), "status": conversionStatus(err)})
			return err
		}
		s.metrics.IncCounter(metrics.ChartConversionTotal, 1, metrics.Labels{"from": string(from), "to": string(to), "status": "ok"})
		out = snapshot(c)
		return nil
	})
	return out, err
}

func conversionStatus(err error) string {
	var ic *chart.IncompatibleConversionError
	if errors.As(err, &ic) {
		return ic.Reason
	}
	var ac *chart.InvalidAxisCountError
	if errors.As(err, &ac) {
		return "invalid_axis_count"
	}
	return "error"
}

// Compat reports which types a chart can be converted to.
func (s *Service) Compat(id, chartID string) (chart.Compatibility, error) {
	var out chart.Compatibility
	err := s.store.With(id, func(sess *session.Session) error {
		c, err := sess.Chart(chartID)
		if err != nil {
			return err
		}
		out = c.Compatibility()
		return nil
	})
	return out, err
}

// Charts lists a session's charts in creation order.
func (s *Service) Charts(id string) ([]*chart.Chart, error) {
	var out []*chart.Chart
	err := s.store.With(id, func(sess *session.Session) error {
		for _, c := range sess.Charts() {
			out = append(out, snapshot(c))
		}
		return nil
	})
	return out, err
}

func (s *Service) Chart(id, chartID string) (*chart.Chart, error) {
	var out *chart.Chart
	err := s.store.With(id, func(sess *session.Session) error {
		c, err := sess.Chart(chartID)
		if err != nil {
			return err
		}
		out = snapshot(c)
		return nil
	})
	return out, err
}

func (s *Service) DeleteChart(id, chartID string) error {
	return s.store.With(id, func(sess *session.Session) error { return sess.DeleteChart(chartID) })
}

// Sessions lists open sessions.
func (s *Service) Sessions() []session.Meta { return s.store.List() }

// DeleteSession removes a session and its charts.
func (s *Service) DeleteSession(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// snapshot copies a chart so callers never share the session's instance.
func snapshot(c *chart.Chart) *chart.Chart {
	return c.Clone()
}
