package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/session"
	"github.com/KaramelBytes/vizloom-cli/internal/utils"
)

// ExportVersion is bumped when the export layout changes incompatibly.
const ExportVersion = 1

// Export is a self-contained snapshot of a session's dashboard.
type Export struct {
	Version         int                                     `json:"version"`
	Session         session.Meta                            `json:"session"`
	Schema          *analysis.DataSchema                    `json:"schema"`
	ProcessedSchema *analysis.DataSchema                    `json:"processed_schema,omitempty"`
	Processing      *recommend.ProcessingRecommendations    `json:"processing_recommendations,omitempty"`
	Visualization   *recommend.VisualizationRecommendations `json:"visualization_recommendations,omitempty"`
	Insights        *recommend.DatasetInsights              `json:"insights,omitempty"`
	Notes           map[string]string                       `json:"notes,omitempty"`
	ProcessingLog   []string                                `json:"processing_log"`
	Charts          []*chart.Chart                          `json:"charts"`
	ExportedAt      time.Time                               `json:"exported_at"`
}

// Export snapshots a session.
func (s *Service) Export(id string) (*Export, error) {
	var out *Export
	err := s.store.With(id, func(sess *session.Session) error {
		out = &Export{
			Version:         ExportVersion,
			Session:         sess.Meta(),
			Schema:          sess.Schema,
			ProcessedSchema: sess.ProcessedSchema,
			Processing:      sess.Processing,
			Visualization:   sess.Visualization,
			Insights:        sess.Insights,
			Notes:           nonEmpty(sess.Notes),
			ProcessingLog:   sess.Pipeline.Log(),
			Charts:          []*chart.Chart{},
			ExportedAt:      time.Now().UTC(),
		}
		for _, c := range sess.Charts() {
			out.Charts = append(out.Charts, snapshot(c))
		}
		return nil
	})
	return out, err
}

// SaveExport writes the session snapshot to path atomically.
func (s *Service) SaveExport(id, path string) (*Export, error) {
	exp, err := s.Export(id)
	if err != nil {
		return nil, err
	}
	if err := exp.Save(path); err != nil {
		return nil, err
	}
	s.logger.Info("dashboard exported", zap.String("session_id", id), zap.String("path", path), zap.Int("charts", len(exp.Charts)))
	return exp, nil
}

// Save writes the export as indented JSON using an atomic rename.
func (e *Export) Save(path string) error {
	if path == "" {
		return errors.New("export path not set")
	}
	return utils.WriteJSON(path, e)
}

// LoadExport reads an export written by Save.
func LoadExport(path string) (*Export, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("export not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read export: %w", err)
	}
	var e Export
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if e.Version > ExportVersion {
		return nil, fmt.Errorf("export version %d is newer than supported version %d", e.Version, ExportVersion)
	}
	return &e, nil
}

func nonEmpty(m map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
