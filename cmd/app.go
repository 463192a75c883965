package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/vizloom-cli/internal/config"
	"github.com/KaramelBytes/vizloom-cli/internal/dashboard"
	"github.com/KaramelBytes/vizloom-cli/internal/insight"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics/datadog"
	"github.com/KaramelBytes/vizloom-cli/internal/parser"
	"github.com/KaramelBytes/vizloom-cli/internal/session"
)

// app bundles the dashboard service with the resources a command must release.
type app struct {
	svc     *dashboard.Service
	rec     *metrics.Recorder
	closers []func() error
}

// Parser flags shared by every command that reads a dataset.
var (
	dataDelimiter  string
	dataSheetName  string
	dataSheetIndex int
	dataMaxRows    int
)

func newApp(ctx context.Context) (*app, error) {
	c, err := config()
	if err != nil {
		return nil, err
	}
	popt, err := parserOptions(c)
	if err != nil {
		return nil, err
	}
	a := &app{rec: metrics.NewRecorder()}
	backend := metrics.Backend(a.rec)
	if c.Metrics.DatadogEnabled {
		dd, err := datadog.New(ctx, datadog.Options{Tags: c.Metrics.Tags})
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		} else {
			backend = metrics.Tee{a.rec, dd}
			a.closers = append(a.closers, dd.Close)
		}
	}
	gen, err := a.generator(ctx, c, backend)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc = dashboard.New(session.NewStore(session.WithMetrics(backend)), gen, dashboard.Options{
		Parser:      popt,
		Profile:     profileOptions(c),
		PreviewRows: c.PreviewRows,
		Logger:      logger,
		Metrics:     backend,
	})
	return a, nil
}

// generator builds the recommendation strategy for the configured provider.
// Runtime construction failures degrade to the rule engine with a warning.
func (a *app) generator(ctx context.Context, c *cfgpkg.Global, m metrics.Backend) (insight.Generator, error) {
	rt, err := ai.GetRuntime(ctx, c.Provider, ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		Logger:      logger,
		APIKey:      c.APIKey,
		Host:        c.OllamaHost,
		Region:      c.BedrockRegion,
	})
	var unknown *ai.UnknownProviderError
	if errors.As(err, &unknown) {
		return nil, err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %s runtime unavailable, using rule-based recommendations: %v\n", c.Provider, err)
		return insight.Fallback{}, nil
	}
	if rt == nil {
		return insight.Fallback{}, nil
	}
	model := c.Model
	if model == "" {
		model = ai.DefaultModel(c.Provider)
	}
	opts := []insight.Option{insight.WithLogger(logger), insight.WithMetrics(m)}
	if cache := a.cache(ctx, c); cache != nil {
		opts = append(opts, insight.WithCache(cache))
	}
	return insight.New(insight.Config{
		Provider:    c.Provider,
		Model:       model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.InsightTimeout(),
	}, rt, opts...), nil
}

func (a *app) cache(ctx context.Context, c *cfgpkg.Global) insight.Cache {
	ttl := c.CacheTTL()
	if ttl <= 0 {
		return nil
	}
	if c.RedisURL == "" {
		return insight.NewMemoryCache(ttl)
	}
	client, err := insight.DialRedis(ctx, c.RedisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: redis cache unavailable, caching in memory: %v\n", err)
		return insight.NewMemoryCache(ttl)
	}
	a.closers = append(a.closers, client.Close)
	return insight.NewRedisCache(client, ttl)
}

// Close releases resources and, with --debug, prints collected metrics.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	if debug {
		printMetrics(os.Stderr, a.rec)
	}
}

func printMetrics(w io.Writer, rec *metrics.Recorder) {
	snap := rec.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %g\n", k, snap[k])
	}
}

func parserOptions(c *cfgpkg.Global) (parser.Options, error) {
	opt := parser.DefaultOptions()
	if c.MaxFileSizeMB > 0 {
		opt.MaxFileSizeMB = c.MaxFileSizeMB
	}
	if len(c.AllowedFileTypes) > 0 {
		opt.AllowedTypes = c.AllowedFileTypes
	}
	switch dataDelimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	case "|", "pipe":
		opt.Delimiter = '|'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", dataDelimiter)
	}
	opt.SheetName = dataSheetName
	if dataSheetIndex > 0 {
		opt.SheetIndex = dataSheetIndex
	}
	opt.MaxRows = dataMaxRows
	return opt, nil
}

func profileOptions(c *cfgpkg.Global) analysis.Options {
	opt := analysis.DefaultOptions()
	p := c.Profile
	if p.DatetimeThreshold > 0 {
		opt.DatetimeThreshold = p.DatetimeThreshold
	}
	if p.NumericThreshold > 0 {
		opt.NumericThreshold = p.NumericThreshold
	}
	if p.CategoricalMaxRatio > 0 {
		opt.CategoricalMaxRatio = p.CategoricalMaxRatio
	}
	if p.CategoricalMaxUnique > 0 {
		opt.CategoricalMaxUnique = p.CategoricalMaxUnique
	}
	if p.SampleValues > 0 {
		opt.SampleValues = p.SampleValues
	}
	return opt
}
