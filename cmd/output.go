package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/dashboard"
	"github.com/KaramelBytes/vizloom-cli/internal/insight"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

// emit writes v in the selected --format; text uses the supplied renderer.
func emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	switch strings.ToLower(outputFormat) {
	case "", "text":
		text(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		return writeYAML(w, v)
	default:
		return fmt.Errorf("unsupported --format %q (use text, json or yaml)", outputFormat)
	}
}

// writeYAML renders v through its JSON form so field names match the JSON output.
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return enc.Close()
}

func sourceLine(w io.Writer, src insight.Source, reason string) {
	if reason != "" {
		fmt.Fprintf(w, "Source: %s (model output unusable: %s)\n", src, reason)
		return
	}
	fmt.Fprintf(w, "Source: %s\n", src)
}

func printProcessing(w io.Writer, r *recommend.ProcessingRecommendations) {
	if r == nil {
		return
	}
	if len(r.ColumnsToDrop) > 0 {
		fmt.Fprintf(w, "Drop columns: %s\n", strings.Join(r.ColumnsToDrop, ", "))
	}
	if len(r.ColumnsToKeep) > 0 {
		fmt.Fprintf(w, "Keep columns: %s\n", strings.Join(r.ColumnsToKeep, ", "))
	}
	if len(r.CleaningSteps) > 0 {
		fmt.Fprintln(w, "Cleaning steps:")
		for i, s := range r.CleaningSteps {
			action := "?"
			if s.Op != nil {
				action = string(s.Op.Action())
			}
			fmt.Fprintf(w, "  %d. %s on '%s'", i+1, action, s.Column)
			if s.Reason != "" {
				fmt.Fprintf(w, " (%s)", s.Reason)
			}
			fmt.Fprintln(w)
		}
	}
	if len(r.FeatureEngineering) > 0 {
		fmt.Fprintln(w, "Feature engineering:")
		for i, f := range r.FeatureEngineering {
			fmt.Fprintf(w, "  %d. %s = %s(%s)\n", i+1, f.NewColumn, f.Operation, strings.Join(f.Sources, ", "))
		}
	}
	if len(r.FilteringCriteria) > 0 {
		fmt.Fprintln(w, "Filters:")
		for _, c := range r.FilteringCriteria {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	if r.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", r.Explanation)
	}
}

func printProcessed(w io.Writer, resp pipeline.ProcessedDataResponse) {
	fmt.Fprintln(w, "Processing log:")
	for _, l := range resp.ProcessingLog {
		fmt.Fprintf(w, "  %s\n", l)
	}
	fmt.Fprintf(w, "Columns: %s\n", strings.Join(resp.Columns, ", "))
	if len(resp.Preview) == 0 {
		return
	}
	fmt.Fprintf(w, "Preview (%d of %d rows):\n", len(resp.Preview), resp.RowCount)
	fmt.Fprintf(w, "  %s\n", strings.Join(resp.Columns, " | "))
	for _, row := range resp.Preview {
		cells := make([]string, len(resp.Columns))
		for i, c := range resp.Columns {
			cells[i] = table.String(row[c])
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(cells, " | "))
	}
}

func printChart(w io.Writer, i int, c *chart.Chart) {
	fmt.Fprintf(w, "[%d] %s  %q  x=%s y=%s  (%d points)  id=%s\n",
		i, c.Type, c.Title, c.XAxis, strings.Join(c.YAxis, ","), len(c.Data), c.ID)
	types := make([]string, 0, len(c.CompatibleTypes))
	for _, t := range c.CompatibleTypes {
		types = append(types, string(t))
	}
	fmt.Fprintf(w, "    compatible: %s\n", strings.Join(types, ", "))
}

func printCharts(w io.Writer, charts []*chart.Chart) {
	if len(charts) == 0 {
		fmt.Fprintln(w, "No charts.")
		return
	}
	for i, c := range charts {
		printChart(w, i+1, c)
	}
}

func printCompat(w io.Writer, c chart.Compatibility) {
	fmt.Fprintf(w, "Current: %s (shape: %s)\n", c.Current, c.Class)
	types := make([]string, 0, len(c.Compatible))
	for _, t := range c.Compatible {
		types = append(types, string(t))
	}
	fmt.Fprintf(w, "Compatible: %s\n", strings.Join(types, ", "))
	for _, r := range c.Incompatible {
		fmt.Fprintf(w, "  ✗ %-15s %s\n", r.Type, r.Reason)
	}
}

func printVisualization(w io.Writer, res *dashboard.VisualizeResult) {
	sourceLine(w, res.Source, res.FallbackReason)
	if res.Recommendations != nil && res.Recommendations.Summary != "" {
		fmt.Fprintln(w, res.Recommendations.Summary)
	}
	printCharts(w, res.Charts)
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "⚠ Skipped: %s\n", s)
	}
	if res.Insight != "" {
		fmt.Fprintf(w, "\n%s\n", res.Insight)
	}
}

func printInsights(w io.Writer, out insight.InsightsOutcome) {
	sourceLine(w, out.Source, out.FallbackReason)
	d := out.Result
	if d == nil {
		return
	}
	fmt.Fprintln(w, d.Summary)
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", title)
		for _, s := range items {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	section("Key observations", d.KeyObservations)
	section("Potential use cases", d.PotentialUseCases)
	section("Data quality issues", d.DataQualityIssues)
	section("Recommended columns", d.RecommendedColumns)
	if out.Insight != "" {
		fmt.Fprintf(w, "\n%s\n", out.Insight)
	}
}
