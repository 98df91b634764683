package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	payrollConfigPath string
	rootCmd           *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "payrun",
		Short: "Payroll withholding and gross/net pay engine",
		Long: `payrun computes gross pay, withholding and net pay for an employer's pay
period, records entries and tax calculations, and disburses net pay to
employee wallets.

Database, redis and telemetry settings come from the environment (.env is
read when present). Engine constants come from payroll.yml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&payrollConfigPath, "payroll-config", "", "path to payroll.yml (default: search /var/lib/payrun/config, /etc/payrun, .)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stubCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(refdataCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
