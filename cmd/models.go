package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
)

var modelsFile string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List known models with context window and pricing",
	Example: `  vizloom models
  vizloom models --provider bedrock
  vizloom models --file ./models.json --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if modelsFile != "" {
			m, err := ai.LoadCatalogFromJSON(modelsFile)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			ai.MergeCatalog(m)
		}
		var out []ai.ModelInfo
		for _, m := range ai.Catalog() {
			if flagProvider == "" || strings.EqualFold(m.Provider, flagProvider) {
				out = append(out, m)
			}
		}
		return emit(cmd, out, func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tMODEL\tCONTEXT\tIN $/1K\tOUT $/1K\tDEFAULT")
			for _, m := range out {
				def := ""
				if ai.DefaultModel(m.Provider) == m.Name {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.5f\t%.5f\t%s\n", m.Provider, m.Name, m.ContextTokens, m.InputPerK, m.OutputPerK, def)
			}
			_ = tw.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&modelsFile, "file", "", "merge a JSON catalog file before listing")
}
