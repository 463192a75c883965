// Package metrics defines the backend-neutral counters and histograms emitted
// by the engine. Concrete backends (Datadog) live in subpackages.
package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names.
const (
	InsightFallbackTotal   = "insight_fallback_total"
	InsightCacheTotal      = "insight_cache_total"
	InsightModelSeconds    = "insight_model_duration_seconds"
	PipelineStepTotal      = "pipeline_step_total"
	ChartConversionTotal   = "chart_conversion_total"
	SessionOperationsTotal = "session_operations_total"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

// OrNop returns b, or Nop when b is nil.
func OrNop(b Backend) Backend {
	if b == nil {
		return Nop{}
	}
	return b
}

// Recorder keeps observations in memory. It backs the CLI summary and tests.
type Recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
}

func NewRecorder() *Recorder {
	return &Recorder{counters: map[string]float64{}, samples: map[string][]float64{}}
}

func (r *Recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[Key(name, labels)] += delta
}

func (r *Recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key(name, labels)
	r.samples[k] = append(r.samples[k], value)
}

// Counter returns the accumulated value for a name and exact label set.
func (r *Recorder) Counter(name string, labels Labels) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[Key(name, labels)]
}

// Total sums a counter across all label sets.
func (r *Recorder) Total(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	for k, v := range r.counters {
		if k == name || strings.HasPrefix(k, name+"{") {
			sum += v
		}
	}
	return sum
}

// Samples returns a copy of histogram observations.
func (r *Recorder) Samples(name string, labels Labels) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.samples[Key(name, labels)]...)
}

// Snapshot returns all counters keyed by name{labels}.
func (r *Recorder) Snapshot() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

// Key renders name{k=v,...} with sorted label keys.
func Key(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Tee fans observations out to several backends.
type Tee []Backend

func (t Tee) IncCounter(name string, delta float64, labels Labels) {
	for _, b := range t {
		b.IncCounter(name, delta, labels)
	}
}

func (t Tee) ObserveHistogram(name string, value float64, labels Labels) {
	for _, b := range t {
		b.ObserveHistogram(name, value, labels)
	}
}
