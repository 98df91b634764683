package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("payroll run failed for every employee")

var (
	runEmployer    string
	runStart       string
	runEnd         string
	runPayDate     string
	runProcessedBy string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process payroll for an employer's pay period",
	Long: `Process payroll for every active employee of an employer over a pay period.

Employees that fail are listed under errors; the rest are processed. The
command exits non-zero only when the run could not start or no employee
was processed. Running the same period again after fixing failures only
processes employees without a completed entry; the others are listed under
alreadyProcessed.

Examples:
  payrun run --employer 1 --start 2023-01-01 --end 2023-01-14 --pay-date 2023-01-20 --by alice`,
	Args: cobra.NoArgs,
	RunE: runPayroll,
}

func init() {
	runCmd.Flags().StringVar(&runEmployer, "employer", "", "employer id")
	runCmd.Flags().StringVar(&runStart, "start", "", "pay period start (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "pay period end, inclusive (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runPayDate, "pay-date", "", "pay date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runProcessedBy, "by", "", "operator recorded as processed_by")
}

func runPayroll(cmd *cobra.Command, _ []string) error {
	req, err := buildProcessRequest(runEmployer, runStart, runEnd, runPayDate, runProcessedBy)
	if err != nil {
		return err
	}

	// Interrupts cancel the run; employees not yet processed are reported
	// as canceled.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(ctx context.Context, d deps) error {
		result, err := d.Payroll.ProcessPayroll(ctx, req)
		if err != nil {
			return err
		}
		if err := writeYAML(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		if result.Status == payrolldomain.RunStatusFailed {
			return errRunFailed
		}
		return nil
	})
}

func buildProcessRequest(employer, start, end, payDate, by string) (payrolldomain.ProcessRequest, error) {
	employerID, err := parseID("--employer", employer)
	if err != nil {
		return payrolldomain.ProcessRequest{}, err
	}
	startDate, err := parseDate("start", start)
	if err != nil {
		return payrolldomain.ProcessRequest{}, err
	}
	endDate, err := parseDate("end", end)
	if err != nil {
		return payrolldomain.ProcessRequest{}, err
	}
	pay, err := parseDate("pay-date", payDate)
	if err != nil {
		return payrolldomain.ProcessRequest{}, err
	}
	return payrolldomain.ProcessRequest{
		EmployerID:  employerID,
		StartDate:   startDate,
		EndDate:     endDate,
		PayDate:     pay,
		ProcessedBy: by,
	}, nil
}
