// Package insight produces processing, visualization and dataset-insight
// recommendations. The Fallback strategy runs the deterministic rule engine;
// the Augmented strategy asks a model runtime first and degrades to the rule
// engine on any failure without surfacing an error.
package insight

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
)

// Source names where an outcome's structured result came from.
type Source string

const (
	SourceFallback Source = "fallback"
	SourceModel    Source = "model"
	SourceCache    Source = "cache"
)

// Fallback reasons, also used as the "reason" metric label.
const (
	ReasonTimeout      = "timeout"
	ReasonCanceled     = "canceled"
	ReasonRuntimeError = "runtime_error"
	ReasonEmpty        = "empty_response"
	ReasonNoJSON       = "no_json"
	ReasonDecode       = "decode_error"
	ReasonMissingField = "missing_field"
	ReasonValidation   = "validation_failed"
)

// Outcome is the result of one generator call. FallbackReason is set only when
// an augmented call degraded to the rule engine.
type Outcome[T any] struct {
	Result         *T     `json:"result"`
	Insight        string `json:"insight,omitempty"`
	Source         Source `json:"source"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

type (
	ProcessingOutcome    = Outcome[recommend.ProcessingRecommendations]
	VisualizationOutcome = Outcome[recommend.VisualizationRecommendations]
	InsightsOutcome      = Outcome[recommend.DatasetInsights]
)

// Generator never returns errors: every failure degrades to the rule engine.
type Generator interface {
	Processing(ctx context.Context, schema *analysis.DataSchema, goal string) ProcessingOutcome
	Visualization(ctx context.Context, schema *analysis.DataSchema, goal string) VisualizationOutcome
	Insights(ctx context.Context, schema *analysis.DataSchema) InsightsOutcome
}

// Config holds model call settings.
type Config struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 2048
)

// Option customizes an Augmented generator.
type Option func(*Augmented)

func WithLogger(l *zap.Logger) Option {
	return func(a *Augmented) {
		if l != nil {
			a.logger = l.Named("insight")
		}
	}
}

func WithMetrics(m metrics.Backend) Option {
	return func(a *Augmented) { a.metrics = metrics.OrNop(m) }
}

// WithCache stores validated model output.
func WithCache(c Cache) Option {
	return func(a *Augmented) { a.cache = c }
}

// New returns the Fallback strategy when rt is nil, else an Augmented generator.
func New(cfg Config, rt ai.Runtime, opts ...Option) Generator {
	if rt == nil {
		return Fallback{}
	}
	return NewAugmented(cfg, rt, opts...)
}

// Fallback wraps the deterministic rule engine.
type Fallback struct{}

func (Fallback) Processing(_ context.Context, schema *analysis.DataSchema, goal string) ProcessingOutcome {
	return ProcessingOutcome{Result: recommend.Fallback{}.Processing(schema, goal), Source: SourceFallback}
}

func (Fallback) Visualization(_ context.Context, schema *analysis.DataSchema, goal string) VisualizationOutcome {
	return VisualizationOutcome{Result: recommend.Fallback{}.Visualization(schema, goal), Source: SourceFallback}
}

func (Fallback) Insights(_ context.Context, schema *analysis.DataSchema) InsightsOutcome {
	return InsightsOutcome{Result: recommend.Fallback{}.Insights(schema), Source: SourceFallback}
}
