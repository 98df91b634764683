package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var stubCmd = &cobra.Command{
	Use:   "stub ENTRY_ID",
	Short: "Print the pay stub for a completed payroll entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entryID, err := parseID("entry id", args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, d deps) error {
			stub, err := d.Payroll.GeneratePayStub(ctx, entryID)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), stub)
		})
	},
}
