package cli

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payrun/internal/migration"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema up to date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, d deps) error {
			if err := migration.Migrate(d.DB.WithContext(ctx), d.Config.DBType); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", d.Config.DBType)
			return err
		})
	},
}
