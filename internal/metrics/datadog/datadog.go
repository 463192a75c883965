// Package datadog submits engine metrics to Datadog.
//
// Observations are buffered in memory and submitted on a ticker and once more
// on Close, so short CLI runs and long shell sessions both produce points.
// Counter and histogram names are translated from snake_case backend names to
// dotted Datadog names (insight_fallback_total -> vizloom.insight.fallback).
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
)

// Prefix is prepended to every submitted metric name.
const Prefix = "vizloom."

// Options controls backend construction.
type Options struct {
	// Service becomes tag "service:<name>"; defaults to "vizloom".
	Service string
	// Tags are extra tags such as "env:prod".
	Tags []string
	// FlushEvery defaults to 30 seconds.
	FlushEvery time.Duration

	now       func() time.Time
	submitter submitter
}

type submitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

type series struct {
	name string
	tags []string
}

// Backend implements metrics.Backend.
type Backend struct {
	api        submitter
	ctx        context.Context
	flushEvery time.Duration
	now        func() time.Time
	baseTags   []string

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
	index    map[string]series
}

// New starts a backend. Credentials come from DD_API_KEY / DD_SITE via the
// client's default context.
func New(parent context.Context, opts Options) (*Backend, error) {
	if opts.submitter == nil && strings.TrimSpace(os.Getenv("DD_API_KEY")) == "" {
		return nil, fmt.Errorf("datadog metrics init: DD_API_KEY is not set")
	}
	service := opts.Service
	if service == "" {
		service = "vizloom"
	}
	every := opts.FlushEvery
	if every <= 0 {
		every = 30 * time.Second
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	api := opts.submitter
	if api == nil {
		api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}
	b := &Backend{
		api:        api,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: every,
		now:        now,
		baseTags:   append([]string{envTag(), "service:" + service}, opts.Tags...),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		counters:   map[string]float64{},
		samples:    map[string][]float64{},
		index:      map[string]series{},
	}
	go b.loop()
	return b, nil
}

func envTag() string {
	for _, k := range []string{"VIZLOOM_ENV", "DD_ENV"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := time.NewTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits what is buffered. Safe to call twice.
func (b *Backend) Close() error {
	b.once.Do(func() { close(b.stopCh) })
	<-b.doneCh
	return b.Flush()
}

// metricName maps insight_fallback_total to vizloom.insight.fallback.
func metricName(name string) string {
	name = strings.TrimSuffix(name, "_total")
	return Prefix + strings.ReplaceAll(name, "_", ".")
}

func (b *Backend) register(name string, labels metrics.Labels) string {
	k := metrics.Key(name, labels)
	if _, ok := b.index[k]; !ok {
		keys := make([]string, 0, len(labels))
		for lk := range labels {
			keys = append(keys, lk)
		}
		sort.Strings(keys)
		tags := make([]string, 0, len(keys))
		for _, lk := range keys {
			v := labels[lk]
			if v == "" {
				v = "unknown"
			}
			tags = append(tags, lk+":"+v)
		}
		b.index[k] = series{name: metricName(name), tags: tags}
	}
	return k
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[b.register(name, labels)] += delta
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := b.register(name, labels)
	b.samples[k] = append(b.samples[k], value)
}

// Flush submits buffered observations. Buffers are reset even when submission fails.
func (b *Backend) Flush() error {
	b.mu.Lock()
	counters, samples, index := b.counters, b.samples, b.index
	b.counters, b.samples, b.index = map[string]float64{}, map[string][]float64{}, map[string]series{}
	b.mu.Unlock()
	if len(counters) == 0 && len(samples) == 0 {
		return nil
	}
	out := buildSeries(b.baseTags, counters, samples, index, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: out}, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

func buildSeries(base []string, counters map[string]float64, samples map[string][]float64, index map[string]series, now int64) []datadogV2.MetricSeries {
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]datadogV2.MetricSeries, 0, len(counters)+5*len(samples))
	for _, k := range keys {
		s := index[k]
		out = append(out, point(s.name, datadogV2.METRICINTAKETYPE_COUNT, counters[k], withTags(base, s.tags), now))
	}
	keys = keys[:0]
	for k := range samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := index[k]
		vals := append([]float64(nil), samples[k]...)
		sort.Float64s(vals)
		tags := withTags(base, s.tags)
		out = append(out,
			point(s.name+".p50", datadogV2.METRICINTAKETYPE_GAUGE, nearestRank(vals, 0.50), tags, now),
			point(s.name+".p95", datadogV2.METRICINTAKETYPE_GAUGE, nearestRank(vals, 0.95), tags, now),
			point(s.name+".max", datadogV2.METRICINTAKETYPE_GAUGE, vals[len(vals)-1], tags, now),
			point(s.name+".count", datadogV2.METRICINTAKETYPE_COUNT, float64(len(vals)), tags, now),
		)
	}
	return out
}

func point(name string, typ datadogV2.MetricIntakeType, v float64, tags []string, now int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: name,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(now), Value: dd.PtrFloat64(v)}},
		Tags:   tags,
	}
}

func withTags(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	return append(append(out, base...), extra...)
}

func nearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// ParseTags splits "env:prod, team:data" into tags.
func ParseTags(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
