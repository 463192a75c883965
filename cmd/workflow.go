package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/dashboard"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/recommend"
	"github.com/KaramelBytes/vizloom-cli/internal/session"
	"github.com/KaramelBytes/vizloom-cli/internal/utils"
)

var (
	wfGoal     string
	wfSaveRecs string
	wfRecsFile string
	wfSkipProc bool
	wfConvert  []string
	wfExport   string
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <file>",
	Short: "Recommend cleaning, feature engineering and filters for an analysis goal",
	Example: `  vizloom recommend sales.csv --goal "compare revenue across regions"
  vizloom recommend sales.csv --goal "find seasonal trends" --save recs.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		up, err := a.svc.Upload(args[0])
		if err != nil {
			return err
		}
		rec, err := a.svc.SetGoal(cmd.Context(), up.Session.ID, wfGoal)
		if err != nil {
			return err
		}
		if wfSaveRecs != "" {
			if err := utils.WriteJSON(wfSaveRecs, rec.Recommendations); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved recommendations to %s\n", wfSaveRecs)
		}
		return emit(cmd, rec, func(w io.Writer) {
			sourceLine(w, rec.Source, rec.FallbackReason)
			printProcessing(w, rec.Recommendations)
			if rec.Insight != "" {
				fmt.Fprintf(w, "\n%s\n", rec.Insight)
			}
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Apply recommended (or saved) processing and preview the result",
	Example: `  vizloom process sales.csv --goal "compare revenue across regions"
  vizloom process sales.csv --recs recs.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		up, err := a.svc.Upload(args[0])
		if err != nil {
			return err
		}
		var recs *recommend.ProcessingRecommendations
		if wfRecsFile != "" {
			recs, err = loadRecs(wfRecsFile)
			if err != nil {
				return err
			}
			if err := recs.Validate(up.Schema); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %v; invalid steps will be skipped\n", err)
			}
		} else if _, err := a.svc.SetGoal(cmd.Context(), up.Session.ID, wfGoal); err != nil {
			return err
		}
		resp, err := a.svc.Apply(up.Session.ID, recs)
		if err != nil {
			return err
		}
		return emit(cmd, resp, func(w io.Writer) { printProcessed(w, resp) })
	},
}

var visualizeCmd = &cobra.Command{
	Use:   "visualize <file>",
	Short: "Process a dataset for a goal and build the recommended charts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		id, _, _, err := prepare(cmd, a.svc, args[0])
		if err != nil {
			return err
		}
		res, err := a.svc.Visualize(cmd.Context(), id)
		if err != nil {
			return err
		}
		return emit(cmd, res, func(w io.Writer) { printVisualization(w, res) })
	},
}

type conversion struct {
	Chart string     `json:"chart_id"`
	From  chart.Type `json:"from"`
	To    chart.Type `json:"to"`
	Error string     `json:"error,omitempty"`
}

type runResult struct {
	Session       session.Meta                   `json:"session"`
	Processing    *dashboard.RecommendResult     `json:"processing"`
	Processed     pipeline.ProcessedDataResponse `json:"processed"`
	Visualization *dashboard.VisualizeResult     `json:"visualization"`
	Conversions   []conversion                   `json:"conversions,omitempty"`
	Charts        []*chart.Chart                 `json:"charts"`
	Export        string                         `json:"export,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run the whole workflow: goal, processing, charts, conversions and export",
	Example: `  vizloom run sales.csv --goal "show revenue trends over time" --convert 1=area --export dashboard.json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		id, rec, processed, err := prepare(cmd, a.svc, args[0])
		if err != nil {
			return err
		}
		res := runResult{Processing: rec, Processed: processed}
		if res.Visualization, err = a.svc.Visualize(cmd.Context(), id); err != nil {
			return err
		}
		for _, spec := range wfConvert {
			ref, target, ok := strings.Cut(spec, "=")
			if !ok {
				return fmt.Errorf("invalid --convert %q (want <chart#|id>=<type>)", spec)
			}
			to, err := chart.ParseType(target)
			if err != nil {
				return err
			}
			c, err := resolveChart(a.svc, id, ref)
			if err != nil {
				return err
			}
			conv := conversion{Chart: c.ID, From: c.Type, To: to}
			if _, err := a.svc.ConvertChart(id, c.ID, to); err != nil {
				conv.Error = err.Error()
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %v\n", err)
			}
			res.Conversions = append(res.Conversions, conv)
		}
		if res.Charts, err = a.svc.Charts(id); err != nil {
			return err
		}
		if wfExport != "" {
			if _, err := a.svc.SaveExport(id, wfExport); err != nil {
				return err
			}
			res.Export = wfExport
		}
		for _, m := range a.svc.Sessions() {
			if m.ID == id {
				res.Session = m
			}
		}
		return emit(cmd, res, func(w io.Writer) {
			sourceLine(w, rec.Source, rec.FallbackReason)
			printProcessed(w, processed)
			fmt.Fprintln(w)
			printVisualization(w, res.Visualization)
			for _, c := range res.Conversions {
				if c.Error == "" {
					fmt.Fprintf(w, "✓ Converted %s: %s → %s\n", c.Chart, c.From, c.To)
				}
			}
			if len(res.Conversions) > 0 {
				fmt.Fprintln(w, "Charts:")
				printCharts(w, res.Charts)
			}
			if res.Export != "" {
				fmt.Fprintf(w, "✓ Exported dashboard to %s\n", res.Export)
			}
		})
	},
}

// prepare uploads path, sets the goal, and applies the recommended processing
// unless --skip-processing is set.
func prepare(cmd *cobra.Command, svc *dashboard.Service, path string) (string, *dashboard.RecommendResult, pipeline.ProcessedDataResponse, error) {
	var resp pipeline.ProcessedDataResponse
	up, err := svc.Upload(path)
	if err != nil {
		return "", nil, resp, err
	}
	id := up.Session.ID
	rec, err := svc.SetGoal(cmd.Context(), id, wfGoal)
	if err != nil {
		return "", nil, resp, err
	}
	if wfSkipProc {
		resp, err = svc.Processed(id)
		return id, rec, resp, err
	}
	resp, err = svc.Apply(id, nil)
	return id, rec, resp, err
}

// resolveChart accepts a 1-based chart position or a chart id (or unique id prefix).
func resolveChart(svc *dashboard.Service, sessionID, ref string) (*chart.Chart, error) {
	charts, err := svc.Charts(sessionID)
	if err != nil {
		return nil, err
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(charts) {
			return nil, fmt.Errorf("%w: #%d (have %d)", session.ErrChartNotFound, n, len(charts))
		}
		return charts[n-1], nil
	}
	var found *chart.Chart
	for _, c := range charts {
		if c.ID == ref {
			return c, nil
		}
		if strings.HasPrefix(c.ID, ref) {
			if found != nil {
				return nil, fmt.Errorf("chart id prefix %q is ambiguous", ref)
			}
			found = c
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrChartNotFound, ref)
	}
	return found, nil
}

func loadRecs(path string) (*recommend.ProcessingRecommendations, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recommendations: %w", err)
	}
	var recs recommend.ProcessingRecommendations
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("parse recommendations %s: %w", path, err)
	}
	return &recs, nil
}

func init() {
	for _, c := range []*cobra.Command{recommendCmd, processCmd, visualizeCmd, runCmd} {
		rootCmd.AddCommand(c)
		addDataFlags(c)
		c.Flags().StringVarP(&wfGoal, "goal", "g", "", "analysis goal (10-1000 characters)")
	}
	_ = recommendCmd.MarkFlagRequired("goal")
	_ = visualizeCmd.MarkFlagRequired("goal")
	_ = runCmd.MarkFlagRequired("goal")
	recommendCmd.Flags().StringVar(&wfSaveRecs, "save", "", "write the recommendations as JSON for process --recs")
	processCmd.Flags().StringVar(&wfRecsFile, "recs", "", "apply recommendations from a JSON file instead of asking for them")
	visualizeCmd.Flags().BoolVar(&wfSkipProc, "skip-processing", false, "chart the raw dataset without applying recommendations")
	runCmd.Flags().BoolVar(&wfSkipProc, "skip-processing", false, "chart the raw dataset without applying recommendations")
	runCmd.Flags().StringArrayVar(&wfConvert, "convert", nil, "convert a chart after creation: <chart#|id>=<type> (repeatable)")
	runCmd.Flags().StringVarP(&wfExport, "export", "o", "", "write the dashboard export JSON to this path")
}
