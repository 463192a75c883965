package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom-cli/internal/chart"
)

var (
	chType string
	chX    string
	chY    []string
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Inspect chart types and conversion compatibility",
}

type compatResult struct {
	Chart         *chart.Chart        `json:"chart"`
	Compatibility chart.Compatibility `json:"compatibility"`
}

var chartCompatCmd = &cobra.Command{
	Use:   "compat <file>",
	Short: "Build a chart over a dataset and list the types it can be converted to",
	Example: `  vizloom chart compat sales.csv --type bar --x region --y revenue
  vizloom chart compat sales.csv --type bar --x region --y revenue,units`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := chart.ParseType(chType)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		up, err := a.svc.Upload(args[0])
		if err != nil {
			return err
		}
		c, err := a.svc.CreateChart(up.Session.ID, chart.Spec{Type: t, X: chX, Y: chY})
		if err != nil {
			return err
		}
		compat, err := a.svc.Compat(up.Session.ID, c.ID)
		if err != nil {
			return err
		}
		res := compatResult{Chart: c, Compatibility: compat}
		return emit(cmd, res, func(w io.Writer) {
			printChart(w, 1, c)
			printCompat(w, compat)
		})
	},
}

type chartType struct {
	Type        chart.Type `json:"type"`
	Description string     `json:"description"`
}

var chartTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List supported chart types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out []chartType
		for _, t := range chart.AllTypes {
			out = append(out, chartType{Type: t, Description: t.Description()})
		}
		return emit(cmd, out, func(w io.Writer) {
			for _, ct := range out {
				fmt.Fprintf(w, "%-15s %s\n", ct.Type, ct.Description)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartCompatCmd, chartTypesCmd)
	addDataFlags(chartCompatCmd)
	chartCompatCmd.Flags().StringVarP(&chType, "type", "t", "", "chart type (see 'vizloom chart types')")
	chartCompatCmd.Flags().StringVar(&chX, "x", "", "x axis column")
	chartCompatCmd.Flags().StringSliceVar(&chY, "y", nil, "y axis column(s), comma-separated")
	_ = chartCompatCmd.MarkFlagRequired("type")
	_ = chartCompatCmd.MarkFlagRequired("x")
	_ = chartCompatCmd.MarkFlagRequired("y")
}
