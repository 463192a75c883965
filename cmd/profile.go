package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/insight"
	"github.com/KaramelBytes/vizloom-cli/internal/utils"
)

var (
	profOutputDir string
	profInsights  bool
	profQuiet     bool
)

type profileResult struct {
	File     string                   `json:"file"`
	Schema   *analysis.DataSchema     `json:"schema"`
	Insights *insight.InsightsOutcome `json:"insights,omitempty"`
	Written  string                   `json:"written,omitempty"`
}

var profileCmd = &cobra.Command{
	Use:   "profile <files...>",
	Short: "Profile one or more datasets (globs allowed) and print their schema",
	Example: `  vizloom profile sales.csv
  vizloom profile "data/*.csv" --output-dir summaries
  vizloom profile sales.xlsx --sheet-name Q1 --insights --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var results []profileResult
		total := len(files)
		for i, path := range files {
			if total > 1 && !profQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			up, err := a.svc.Upload(path)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			res := profileResult{File: path, Schema: up.Schema}
			if profInsights {
				out, err := a.svc.Insights(cmd.Context(), up.Session.ID)
				if err != nil {
					return err
				}
				res.Insights = &out
			}
			if profOutputDir != "" {
				out, err := writeSummary(profOutputDir, path, up.Schema.Markdown())
				if err != nil {
					return err
				}
				res.Written = out
				if !profQuiet {
					fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote profile to %s\n", out)
				}
			}
			// The session only exists to reuse the dashboard pipeline.
			_ = a.svc.DeleteSession(up.Session.ID)
			results = append(results, res)
		}

		var v any = results
		if len(results) == 1 {
			v = results[0]
		}
		return emit(cmd, v, func(w io.Writer) {
			for _, r := range results {
				if r.Written != "" || profQuiet {
					continue
				}
				fmt.Fprintln(w, r.Schema.Markdown())
				if r.Insights != nil {
					printInsights(w, *r.Insights)
				}
			}
		})
	},
}

// expandInputs resolves globs, keeps literal paths that exist, dedupes and sorts.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// writeSummary writes md to <dir>/<base>.schema.md, suffixing __2, __3...
// rather than overwriting an earlier summary with the same base name.
func writeSummary(dir, path, md string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("ensure dir: %w", err)
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if dataSheetName != "" {
		stem += "__sheet-" + slug(dataSheetName)
	}
	out := filepath.Join(dir, stem+".schema.md")
	for idx := 2; ; idx++ {
		if _, err := os.Stat(out); os.IsNotExist(err) {
			break
		}
		out = filepath.Join(dir, fmt.Sprintf("%s__%d.schema.md", stem, idx))
	}
	if err := utils.SafeWriteFile(out, []byte(md)); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return out, nil
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	if out := strings.Trim(b.String(), "-"); out != "" {
		return out
	}
	return "sheet"
}

func addDataFlags(c *cobra.Command) {
	c.Flags().StringVar(&dataDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe' (auto if omitted)")
	c.Flags().StringVar(&dataSheetName, "sheet-name", "", "XLSX: sheet name to read")
	c.Flags().IntVar(&dataSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	c.Flags().IntVar(&dataMaxRows, "max-rows", 0, "maximum rows to read (0 = unlimited)")
}

func init() {
	rootCmd.AddCommand(profileCmd)
	addDataFlags(profileCmd)
	profileCmd.Flags().StringVarP(&profOutputDir, "output-dir", "o", "", "write each profile as Markdown into this directory")
	profileCmd.Flags().BoolVar(&profInsights, "insights", false, "also describe each dataset (key observations, quality issues)")
	profileCmd.Flags().BoolVar(&profQuiet, "quiet", false, "suppress progress and non-essential output")
}
