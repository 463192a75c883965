// Package session holds per-dataset analysis state. The Store lends one
// session at a time to a callback; handles must not escape it.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/metrics"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrChartNotFound = errors.New("chart not found")
)

// Goal length bounds, in characters.
const (
	MinGoalLength = 10
	MaxGoalLength = 1000
)

// GoalLengthError rejects a goal outside [MinGoalLength, MaxGoalLength].
type GoalLengthError struct {
	Length int
}

func (e *GoalLengthError) Error() string {
	return fmt.Sprintf("goal must be %d-%d characters, got %d", MinGoalLength, MaxGoalLength, e.Length)
}

// ValidateGoal trims goal and checks its length.
func ValidateGoal(goal string) (string, error) {
	goal = strings.TrimSpace(goal)
	if n := utf8.RuneCountInString(goal); n < MinGoalLength || n > MaxGoalLength {
		return "", &GoalLengthError{Length: n}
	}
	return goal, nil
}

// Meta is the listing view of a session.
type Meta struct {
	ID        string    `json:"session_id"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type"`
	Goal      string    `json:"use_case,omitempty"`
	RowCount  int       `json:"row_count"`
	Charts    int       `json:"chart_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the mutable state of one uploaded dataset.
type Session struct {
	ID        string
	FileName  string
	FileType  string
	Goal      string
	CreatedAt time.Time

	Pipeline *pipeline.Pipeline
	// Schema profiles the original table; ProcessedSchema the current one.
	Schema          *analysis.DataSchema
	ProcessedSchema *analysis.DataSchema

	Processing    *recommend.ProcessingRecommendations
	Visualization *recommend.VisualizationRecommendations
	Insights      *recommend.DatasetInsights
	// Prose notes returned alongside recommendations, keyed by operation.
	Notes map[string]string

	charts map[string]*chart.Chart
	order  []string
}

// Meta summarizes the session.
func (s *Session) Meta() Meta {
	m := Meta{ID: s.ID, FileName: s.FileName, FileType: s.FileType, Goal: s.Goal, Charts: len(s.order), CreatedAt: s.CreatedAt}
	if s.Pipeline != nil {
		m.RowCount = s.Pipeline.Current().Len()
	}
	return m
}

// AddChart stores c under its id.
func (s *Session) AddChart(c *chart.Chart) {
	if _, ok := s.charts[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.charts[c.ID] = c
}

// Chart returns the chart with the given id or ErrChartNotFound.
func (s *Session) Chart(id string) (*chart.Chart, error) {
	c, ok := s.charts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChartNotFound, id)
	}
	return c, nil
}

// Charts returns charts in creation order.
func (s *Session) Charts() []*chart.Chart {
	out := make([]*chart.Chart, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.charts[id])
	}
	return out
}

// DeleteChart removes a chart.
func (s *Session) DeleteChart(id string) error {
	if _, ok := s.charts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrChartNotFound, id)
	}
	delete(s.charts, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ClearCharts drops every chart.
func (s *Session) ClearCharts() {
	s.charts = map[string]*chart.Chart{}
	s.order = nil
}

type entry struct {
	mu      sync.Mutex
	s       *Session
	deleted bool
}

// Store keeps sessions in memory for the life of the process.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
	metrics metrics.Backend
}

// Option configures a Store.
type Option func(*Store)

func WithMetrics(m metrics.Backend) Option { return func(s *Store) { s.metrics = metrics.OrNop(m) } }

// WithClock overrides time.Now for created_at stamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(opts ...Option) *Store {
	st := &Store{entries: map[string]*entry{}, now: time.Now, metrics: metrics.Nop{}}
	for _, o := range opts {
		o(st)
	}
	return st
}

// Create registers a new session built from the uploaded dataset.
func (st *Store) Create(fileName, fileType string, p *pipeline.Pipeline, schema *analysis.DataSchema) Meta {
	s := &Session{
		ID:              uuid.NewString(),
		FileName:        fileName,
		FileType:        fileType,
		CreatedAt:       st.now().UTC(),
		Pipeline:        p,
		Schema:          schema,
		ProcessedSchema: schema,
		Notes:           map[string]string{},
		charts:          map[string]*chart.Chart{},
	}
	st.mu.Lock()
	st.entries[s.ID] = &entry{s: s}
	st.mu.Unlock()
	st.count("create", nil)
	return s.Meta()
}

// With runs fn while holding the session's lock. The *Session must not be
// retained after fn returns.
func (st *Store) With(id string, fn func(*Session) error) error {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fn(e.s)
}

// Delete removes a session and its charts.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	e, ok := st.entries[id]
	delete(st.entries, id)
	st.mu.Unlock()
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNotFound, id)
		st.count("delete", err)
		return err
	}
	e.mu.Lock()
	e.deleted = true
	e.s.ClearCharts()
	e.mu.Unlock()
	st.count("delete", nil)
	return nil
}

// List returns every session ordered by creation time.
func (st *Store) List() []Meta {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.entries))
	for _, e := range st.entries {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]Meta, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.s.Meta())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

func (st *Store) count(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	st.metrics.IncCounter(metrics.SessionOperationsTotal, 1, metrics.Labels{"op": op, "status": status})
}
