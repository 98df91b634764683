package cli

import (
	"context"
	"fmt"

	taxrefservice "github.com/smallbiznis/payrun/internal/taxref/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage tax reference data",
}

var refdataLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Replace reference data from a YAML document",
	Long: `Replace brackets, FICA rates and allowances from a YAML document.

Each set in the document replaces the stored set for its key. Loading stops
at the first rejected set; sets applied before it stay applied.

Examples:
  payrun refdata load refdata/2023.yml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := taxrefservice.LoadFile(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, d deps) error {
			if err := taxrefservice.Apply(ctx, d.TaxRef, doc); err != nil {
				return err
			}
			d.Log.Info("reference data loaded", zap.String("file", args[0]), zap.Int("years", len(doc.Years)))
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "loaded %d year(s) from %s\n", len(doc.Years), args[0])
			return err
		})
	},
}

func init() {
	refdataCmd.AddCommand(refdataLoadCmd)
}
