package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/dashboard"
)

const testGoal = "show revenue trends by region over time"

// isolate points HOME and the working directory at fresh temp dirs so
// config files and .env lookups never touch the developer's machine.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENROUTER_API_KEY", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func writeSalesCSV(t *testing.T, path string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,revenue,units,region\n")
	regions := []string{"North", "South", "East"}
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "2024-01-%02d,%d,%d,%s\n", i+1, 100+i*25, i%4+1, regions[i%3])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

// resetFlags restores every flag to its default; cobra keeps values and
// Changed state between Execute calls on the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, "", args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func TestCLI_ProfileText(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))

	out := mustExecute(t, "profile", path)
	for _, want := range []string{"[DATASET SUMMARY]", "File: sales.csv", "Rows: 12", "- revenue: numeric"} {
		if !strings.Contains(out, want) {
			t.Fatalf("profile output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_ProfileBatchCollisionSuffix(t *testing.T) {
	home := isolate(t)
	writeSalesCSV(t, filepath.Join(home, "d1", "metrics.csv"))
	writeSalesCSV(t, filepath.Join(home, "d2", "metrics.csv"))
	outDir := filepath.Join(home, "summaries")

	mustExecute(t, "profile", filepath.Join(home, "d*", "metrics.csv"), "--output-dir", outDir, "--quiet")

	for _, name := range []string{"metrics.schema.md", "metrics__2.schema.md"} {
		body, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("missing summary %s: %v", name, err)
		}
		if !strings.Contains(string(body), "[SCHEMA]") {
			t.Fatalf("summary %s has no schema section", name)
		}
	}
}

func TestCLI_ProfileNoMatches(t *testing.T) {
	home := isolate(t)
	if _, err := execute(t, "", "profile", filepath.Join(home, "nothing*.csv")); err == nil {
		t.Fatalf("expected error for unmatched glob")
	}
}

func TestCLI_RecommendSaveThenProcess(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))
	recs := filepath.Join(home, "out", "recs.json")

	out := mustExecute(t, "recommend", path, "--goal", testGoal, "--save", recs)
	if !strings.Contains(out, "Source: fallback") {
		t.Fatalf("expected rule-based source, got:\n%s", out)
	}
	if _, err := os.Stat(recs); err != nil {
		t.Fatalf("recommendations not saved: %v", err)
	}

	out = mustExecute(t, "process", path, "--recs", recs, "--format", "json")
	var resp struct {
		RowCount int      `json:"row_count"`
		Log      []string `json:"processing_log"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode process output: %v\n%s", err, out)
	}
	if resp.RowCount == 0 || len(resp.Log) == 0 {
		t.Fatalf("unexpected process response: %+v", resp)
	}
	if last := resp.Log[len(resp.Log)-1]; !strings.HasPrefix(last, "Final dataset:") {
		t.Fatalf("last log line = %q", last)
	}
}

func TestCLI_RecommendRejectsShortGoal(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))
	if _, err := execute(t, "", "recommend", path, "--goal", "short"); err == nil {
		t.Fatalf("expected goal length error")
	}
}

func TestCLI_VisualizeJSON(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))

	out := mustExecute(t, "visualize", path, "-g", testGoal, "-f", "json")
	var res dashboard.VisualizeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode visualize output: %v\n%s", err, out)
	}
	if len(res.Charts) == 0 {
		t.Fatalf("expected charts, got none")
	}
	for _, c := range res.Charts {
		found := false
		for _, ct := range c.CompatibleTypes {
			if ct == c.Type {
				found = true
			}
		}
		if !found {
			t.Fatalf("chart %s type %s missing from its compatible types %v", c.ID, c.Type, c.CompatibleTypes)
		}
	}
}

func TestCLI_ChartCompatMultiSeries(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))

	out := mustExecute(t, "chart", "compat", path, "--type", "bar", "--x", "region", "--y", "revenue,units", "--format", "json")
	var res struct {
		Compatibility chart.Compatibility `json:"compatibility"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode compat output: %v\n%s", err, out)
	}
	if got := res.Compatibility.Reason(chart.Pie); got != chart.ReasonMultipleSeries {
		t.Fatalf("pie rejection reason = %q, want %q", got, chart.ReasonMultipleSeries)
	}
	if res.Compatibility.Current != chart.Bar {
		t.Fatalf("current = %s", res.Compatibility.Current)
	}
}

func TestCLI_ChartTypes(t *testing.T) {
	isolate(t)
	out := mustExecute(t, "chart", "types")
	for _, ct := range chart.AllTypes {
		if !strings.Contains(out, string(ct)) {
			t.Fatalf("chart types missing %s:\n%s", ct, out)
		}
	}
}

func TestCLI_RunConvertAndExport(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))
	exportPath := filepath.Join(home, "exports", "dashboard.json")

	out := mustExecute(t, "run", path, "--goal", testGoal, "--convert", "1=bar", "--export", exportPath, "--format", "json")
	var res struct {
		Conversions []conversion   `json:"conversions"`
		Charts      []*chart.Chart `json:"charts"`
		Export      string         `json:"export"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode run output: %v\n%s", err, out)
	}
	if len(res.Conversions) != 1 || res.Conversions[0].To != chart.Bar {
		t.Fatalf("unexpected conversions: %+v", res.Conversions)
	}
	if res.Export != exportPath {
		t.Fatalf("export = %q", res.Export)
	}

	exp, err := dashboard.LoadExport(exportPath)
	if err != nil {
		t.Fatalf("load export: %v", err)
	}
	if exp.Version != dashboard.ExportVersion {
		t.Fatalf("version = %d", exp.Version)
	}
	if len(exp.Charts) != len(res.Charts) {
		t.Fatalf("export has %d charts, run reported %d", len(exp.Charts), len(res.Charts))
	}
	if exp.Session.Goal != testGoal {
		t.Fatalf("export goal = %q", exp.Session.Goal)
	}
}

func TestCLI_RunBadConvertSpec(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))
	if _, err := execute(t, "", "run", path, "--goal", testGoal, "--convert", "nonsense"); err == nil {
		t.Fatalf("expected error for malformed --convert")
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := isolate(t)

	mustExecute(t, "config", "set", "preview_rows", "5")
	if _, err := os.Stat(filepath.Join(home, ".vizloom", "config.yaml")); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	out := mustExecute(t, "config", "show", "--format", "json")
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode config: %v\n%s", err, out)
	}
	if shown["preview_rows"] != float64(5) {
		t.Fatalf("preview_rows = %v", shown["preview_rows"])
	}

	if _, err := execute(t, "", "config", "set", "no_such_key", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestCLI_ConfigShowMasksKey(t *testing.T) {
	isolate(t)
	t.Setenv("VIZLOOM_API_KEY", "sk-abcdefghijklmnop")
	out := mustExecute(t, "config", "show")
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Fatalf("api key not masked:\n%s", out)
	}
}

func TestCLI_Models(t *testing.T) {
	isolate(t)
	out := mustExecute(t, "models")
	if !strings.Contains(out, "PROVIDER") || !strings.Contains(out, "openrouter") {
		t.Fatalf("unexpected models output:\n%s", out)
	}
}

func TestCLI_UnknownProvider(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))
	t.Setenv("VIZLOOM_PROVIDER", "nope")
	if _, err := execute(t, "", "recommend", path, "--goal", testGoal); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestCLI_Shell(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))
	exportPath := filepath.Join(home, "shell.json")

	script := strings.Join([]string{
		"help",
		"visualize",
		"create bar region revenue,units Revenue and units",
		"convert 1 pie",
		"convert 1 horizontal_bar",
		"compat 1",
		"goal " + testGoal,
		"apply",
		"charts",
		"bogus",
		"export " + exportPath,
		"sessions",
		"quit",
	}, "\n")
	out, err := execute(t, script, "shell", path)
	if err != nil {
		t.Fatalf("shell failed: %v", err)
	}
	for _, want := range []string{
		"✓ Opened sales.csv",
		"Commands:",
		"Final dataset:",
		"multiple_series_not_supported",
		"✓ Converted bar → horizontal_bar",
		`unknown command "bogus"`,
		"✓ Exported 1 charts",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("shell output missing %q:\n%s", want, out)
		}
	}
	// visualize before a goal is set reports an error and the loop continues
	if !strings.Contains(out, "✗ Error:") {
		t.Fatalf("expected an error line for visualize without goal:\n%s", out)
	}
	if _, err := dashboard.LoadExport(exportPath); err != nil {
		t.Fatalf("load export: %v", err)
	}
}

func TestCLI_ShellCreateNumbersCharts(t *testing.T) {
	home := isolate(t)
	path := writeSalesCSV(t, filepath.Join(home, "sales.csv"))

	script := strings.Join([]string{
		"create bar region revenue",
		"create line date revenue",
		"create pie region nope",
		"quit",
	}, "\n")
	out, err := execute(t, script, "shell", path)
	if err != nil {
		t.Fatalf("shell failed: %v", err)
	}
	for _, want := range []string{"[1] bar", "[2] line", "✗ Error:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("shell output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "[3] pie") {
		t.Fatalf("failed create should not be listed:\n%s", out)
	}
}
