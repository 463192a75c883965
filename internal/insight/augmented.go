package insight

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
)

// Augmented asks a model runtime first and degrades to the rule engine.
type Augmented struct {
	cfg     Config
	rt      ai.Runtime
	cache   Cache
	logger  *zap.Logger
	metrics metrics.Backend
}

func NewAugmented(cfg Config, rt ai.Runtime, opts ...Option) *Augmented {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	a := &Augmented{cfg: cfg, rt: rt, logger: zap.NewNop(), metrics: metrics.Nop{}}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Augmented) Processing(ctx context.Context, schema *analysis.DataSchema, goal string) ProcessingOutcome {
	return call(ctx, a, opProcessing, schema, goal, processingSystem, decodeProcessing,
		func(r *recommend.ProcessingRecommendations) error { return r.Validate(schema) },
		func() *recommend.ProcessingRecommendations { return recommend.Fallback{}.Processing(schema, goal) })
}

func (a *Augmented) Visualization(ctx context.Context, schema *analysis.DataSchema, goal string) VisualizationOutcome {
	return call(ctx, a, opVisualization, schema, goal, visualizationSystem(), decodeVisualization,
		func(v *recommend.VisualizationRecommendations) error {
			if len(v.Charts) == 0 {
				return errors.New("no charts recommended")
			}
			if err := v.Validate(schema); err != nil {
				return err
			}
			v.Normalize(schema)
			return nil
		},
		func() *recommend.VisualizationRecommendations { return recommend.Fallback{}.Visualization(schema, goal) })
}

func (a *Augmented) Insights(ctx context.Context, schema *analysis.DataSchema) InsightsOutcome {
	return call(ctx, a, opInsights, schema, "", insightsSystem, decodeInsights,
		func(d *recommend.DatasetInsights) error { return d.Validate(schema) },
		func() *recommend.DatasetInsights { return recommend.Fallback{}.Insights(schema) })
}

// call runs one model round trip. Nothing of the model's structured answer
// survives unless it decodes, carries every required field and validates.
func call[T any](
	ctx context.Context,
	a *Augmented,
	op string,
	schema *analysis.DataSchema,
	goal, system string,
	decode func([]byte) (*T, string, error),
	validate func(*T) error,
	fallback func() *T,
) Outcome[T] {
	log := a.logger.With(zap.String("op", op), zap.String("model", a.cfg.Model))
	key, keyErr := CacheKey(op, a.cfg.Model, schema, goal)
	if a.cache != nil && keyErr == nil {
		if out, ok := fromCache[T](ctx, a, log, op, key); ok {
			return out
		}
	}

	degrade := func(reason string, prose string, err error) Outcome[T] {
		log.Warn("model output discarded, using fallback", zap.String("reason", reason), zap.Error(err))
		a.metrics.IncCounter(metrics.InsightFallbackTotal, 1, metrics.Labels{"op": op, "reason": reason})
		return Outcome[T]{Result: fallback(), Insight: prose, Source: SourceFallback, FallbackReason: reason}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	start := time.Now()
	resp, err := a.rt.Generate(callCtx, ai.GenerateRequest{
		Model:       a.cfg.Model,
		Messages:    a.messages(system, schema, goal),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		JSONMode:    true,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.ObserveHistogram(metrics.InsightModelSeconds, time.Since(start).Seconds(), metrics.Labels{"op": op, "status": status})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return degrade(ReasonCanceled, "", err)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return degrade(ReasonTimeout, "", err)
		}
		return degrade(ReasonRuntimeError, "", err)
	}
	text := resp.Text()
	if text == "" {
		return degrade(ReasonEmpty, "", nil)
	}
	body, err := ExtractJSON(text)
	if err != nil {
		return degrade(ReasonNoJSON, "", err)
	}
	result, prose, err := decode([]byte(body))
	if err != nil {
		var mf *MissingFieldError
		if errors.As(err, &mf) {
			return degrade(ReasonMissingField, prose, err)
		}
		return degrade(ReasonDecode, prose, err)
	}
	if err := validate(result); err != nil {
		return degrade(ReasonValidation, prose, err)
	}
	log.Debug("model output accepted", zap.String("request_id", resp.RequestID), zap.Int("tokens", resp.Usage.TotalTokens))

	if a.cache != nil && keyErr == nil {
		toCache(ctx, a, log, key, result, prose)
	}
	return Outcome[T]{Result: result, Insight: prose, Source: SourceModel}
}

func fromCache[T any](ctx context.Context, a *Augmented, log *zap.Logger, op, key string) (Outcome[T], bool) {
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		log.Warn("insight cache read failed", zap.Error(err))
	}
	var c cached
	var out T
	if ok && err == nil && json.Unmarshal(raw, &c) == nil && json.Unmarshal(c.Result, &out) == nil {
		a.metrics.IncCounter(metrics.InsightCacheTotal, 1, metrics.Labels{"op": op, "result": "hit"})
		return Outcome[T]{Result: &out, Insight: c.Insight, Source: SourceCache}, true
	}
	a.metrics.IncCounter(metrics.InsightCacheTotal, 1, metrics.Labels{"op": op, "result": "miss"})
	return Outcome[T]{}, false
}

func toCache[T any](ctx context.Context, a *Augmented, log *zap.Logger, key string, result *T, prose string) {
	res, err := json.Marshal(result)
	if err == nil {
		var b []byte
		b, err = json.Marshal(cached{Result: res, Insight: prose})
		if err == nil {
			err = a.cache.Set(ctx, key, b)
		}
	}
	if err != nil {
		log.Warn("insight cache write failed", zap.Error(err))
	}
}
