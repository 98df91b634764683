package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	reportEmployer string
	reportStart    string
	reportEnd      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize completed payroll entries for an employer",
	Long: `Summarize completed payroll entries whose pay period starts within
[start, end], end inclusive.

Examples:
  payrun report --employer 1 --start 2023-01-01 --end 2023-03-31`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		employerID, err := parseID("--employer", reportEmployer)
		if err != nil {
			return err
		}
		start, err := parseDate("start", reportStart)
		if err != nil {
			return err
		}
		end, err := parseDate("end", reportEnd)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, d deps) error {
			report, err := d.Payroll.GeneratePayrollReport(ctx, employerID, start, end)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), report)
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportEmployer, "employer", "", "employer id")
	reportCmd.Flags().StringVar(&reportStart, "start", "", "first period start date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "last period start date, inclusive (YYYY-MM-DD)")
}
