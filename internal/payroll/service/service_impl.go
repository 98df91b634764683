package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payrun/internal/clock"
	"github.com/smallbiznis/payrun/internal/config"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	"github.com/smallbiznis/payrun/internal/grosspay"
	"github.com/smallbiznis/payrun/internal/lock"
	"github.com/smallbiznis/payrun/internal/money"
	"github.com/smallbiznis/payrun/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payrun/internal/observability/metrics"
	"github.com/smallbiznis/payrun/internal/observability/tracing"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"github.com/smallbiznis/payrun/internal/withholding"
	"github.com/smallbiznis/payrun/internal/ytd"
	"github.com/smallbiznis/payrun/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        payrolldomain.Repository
	TaxRef      taxrefdomain.Service
	Directory   payrolldomain.EmployeeDirectory
	TimeTracker payrolldomain.TimeTracker
	Aggregator  *ytd.Aggregator
	Config      *config.PayrollConfigHolder
	RunLock     *lock.RunLock
	Disburser   payrolldomain.Disburser     `optional:"true"`
	Metrics     *obsmetrics.PayrollMetrics `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        payrolldomain.Repository
	taxref      taxrefdomain.Service
	directory   payrolldomain.EmployeeDirectory
	timeTracker payrolldomain.TimeTracker
	aggregator  *ytd.Aggregator
	config      *config.PayrollConfigHolder
	runLock     *lock.RunLock
	disburser   payrolldomain.Disburser
	metrics     *obsmetrics.PayrollMetrics
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) payrolldomain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	aggregator := p.Aggregator
	if aggregator == nil {
		aggregator = ytd.NewAggregator()
	}
	runLock := p.RunLock
	if runLock == nil {
		runLock = lock.NewRunLock(nil, p.Log)
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payroll.service"),
		genID:       p.GenID,
		clock:       clk,
		repo:        p.Repo,
		taxref:      p.TaxRef,
		directory:   p.Directory,
		timeTracker: p.TimeTracker,
		aggregator:  aggregator,
		config:      p.Config,
		runLock:     runLock,
		disburser:   p.Disburser,
		metrics:     p.Metrics,
		obsMetrics:  p.ObsMetrics,
	}
}

// employeeOutcome is the tagged result of one employee. processed is set on
// success; errs may be non-empty alongside it for disbursement failures.
// skipped is set alone when the period was already paid.
type employeeOutcome struct {
	processed *payrolldomain.ProcessedEntry
	skipped   *payrolldomain.AlreadyProcessedEntry
	errs      []payrolldomain.EmployeeError
}

func (o *employeeOutcome) skip(employeeID, entryID snowflake.ID) {
	o.skipped = &payrolldomain.AlreadyProcessedEntry{EmployeeID: employeeID, EntryID: entryID}
}

func (o *employeeOutcome) fail(employeeID, entryID snowflake.ID, kind payrolldomain.ErrorKind, err error) {
	o.errs = append(o.errs, payrolldomain.EmployeeError{
		EmployeeID: employeeID,
		EntryID:    entryID,
		Kind:       kind,
		Message:    err.Error(),
	})
}

// ProcessPayroll computes and persists one pay period for every active
// employee of the employer. Per-employee failures are collected in the
// result; only run-level preconditions are returned as errors.
func (s *Service) ProcessPayroll(ctx context.Context, req payrolldomain.ProcessRequest) (*payrolldomain.RunResult, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	cfg := s.config.Get()
	startedAt := s.clock.Now()

	ctx, span := tracing.Tracer().Start(ctx, "payroll.ProcessPayroll")
	defer span.End()
	span.SetAttributes(
		attribute.String("employer_id", req.EmployerID.String()),
		attribute.String("pay_period_start", req.StartDate.Format(time.DateOnly)),
	)

	release, err := s.runLock.Acquire(ctx, lock.RunKey(req.EmployerID), cfg.RunLockTTL())
	if err != nil {
		s.metrics.IncRun(obsmetrics.RunStatusRejected)
		if errors.Is(err, lock.ErrLocked) {
			return nil, payrolldomain.ErrRunInProgress
		}
		return nil, err
	}
	defer release()

	employees, err := s.directory.GetActiveEmployees(ctx, req.EmployerID)
	if err != nil {
		s.metrics.IncRun(obsmetrics.RunStatusRejected)
		return nil, fmt.Errorf("list active employees: %w", err)
	}
	if len(employees) == 0 {
		s.metrics.IncRun(obsmetrics.RunStatusRejected)
		return nil, payrolldomain.ErrNoEmployees
	}

	// Pin holds the year's read lock so reference data cannot change
	// under the run.
	year := req.StartDate.Year()
	snap, releaseYear, err := s.taxref.Pin(ctx, year)
	if err != nil {
		s.metrics.IncRun(obsmetrics.RunStatusRejected)
		return nil, fmt.Errorf("load reference data year=%d: %w", year, err)
	}
	defer releaseYear()

	run := &payrolldomain.PayrollRun{
		ID:             s.genID.Generate(),
		EmployerID:     req.EmployerID,
		PayPeriodStart: req.StartDate,
		PayPeriodEnd:   req.EndDate,
		PayDate:        req.PayDate,
		TaxYear:        year,
		ProcessedBy:    req.ProcessedBy,
		Status:         payrolldomain.RunStatusRunning,
		StartedAt:      startedAt,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		s.metrics.IncRun(obsmetrics.RunStatusRejected)
		return nil, fmt.Errorf("create payroll run: %w", err)
	}
	span.SetAttributes(attribute.String("run_id", run.ID.String()))

	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout())
	defer cancel()
	runCtx = logger.ContextWithRun(runCtx, run.ID.String(), req.EmployerID.String())
	log := logger.WithContext(runCtx, s.log)
	log.Info("payroll run started",
		zap.Int("employees", len(employees)),
		zap.Int("tax_year", year),
		zap.String("pay_period_start", req.StartDate.Format(time.DateOnly)),
		zap.String("pay_period_end", req.EndDate.Format(time.DateOnly)),
	)

	plan := runPlan{
		run:         run,
		req:         req,
		snap:        snap,
		withholding: withholding.OptionsFromConfig(cfg),
		gross:       grossOptionsFromConfig(cfg),
		log:         log,
	}

	outcomes := make([]employeeOutcome, len(employees))
	g := new(errgroup.Group)
	g.SetLimit(cfg.Concurrency)
	for i, emp := range employees {
		g.Go(func() error {
			outcomes[i] = s.processEmployee(runCtx, plan, emp)
			return nil
		})
	}
	_ = g.Wait()

	result := &payrolldomain.RunResult{
		RunID:      run.ID,
		EmployerID: req.EmployerID,
		TaxYear:    year,
		Processed:  []payrolldomain.ProcessedEntry{},
		Errors:     []payrolldomain.EmployeeError{},
	}
	for _, out := range outcomes {
		if out.processed != nil {
			result.Processed = append(result.Processed, *out.processed)
		}
		if out.skipped != nil {
			result.AlreadyProcessed = append(result.AlreadyProcessed, *out.skipped)
		}
		result.Errors = append(result.Errors, out.errs...)
	}

	status := obsmetrics.RunStatus(len(result.Processed), len(result.Errors))
	result.Status = payrolldomain.RunStatus(status)
	s.finishRun(context.WithoutCancel(ctx), run, result, log)

	duration := s.clock.Now().Sub(startedAt)
	s.metrics.IncRun(status)
	s.metrics.ObserveRunDuration(duration)
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, "employees failed")
	}
	log.Info("payroll run finished",
		zap.String("status", status),
		zap.Int("processed", len(result.Processed)),
		zap.Int("already_processed", len(result.AlreadyProcessed)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", duration),
	)
	return result, nil
}

type runPlan struct {
	run         *payrolldomain.PayrollRun
	req         payrolldomain.ProcessRequest
	snap        *taxrefdomain.Snapshot
	withholding withholding.Options
	gross       grosspay.Options
	log         *zap.Logger
}

func (s *Service) processEmployee(ctx context.Context, plan runPlan, emp employeedomain.Employee) employeeOutcome {
	var out employeeOutcome
	log := logger.WithEmployee(plan.log, emp.ID.String())

	if err := ctx.Err(); err != nil {
		out.fail(emp.ID, 0, payrolldomain.ErrorKindCanceled, err)
		s.recordEmployeeError(payrolldomain.ErrorKindCanceled)
		log.Warn("employee skipped, run canceled", zap.Error(err))
		return out
	}

	ctx, span := tracing.Tracer().Start(ctx, "payroll.processEmployee")
	defer span.End()
	span.SetAttributes(attribute.String("employee_id", emp.ID.String()))

	existing, err := s.repo.FindCompletedEntry(ctx, emp.ID, plan.req.StartDate, plan.req.EndDate)
	switch {
	case err == nil:
		out.skip(emp.ID, existing.ID)
		s.metrics.IncEmployee(employeeStatusAlreadyProcessed)
		log.Info("employee skipped, period already paid", zap.String("entry_id", existing.ID.String()))
		return out
	case !errors.Is(err, payrolldomain.ErrNotFound):
		kind := classify(err)
		out.fail(emp.ID, 0, kind, err)
		s.recordEmployeeError(kind)
		span.RecordError(err)
		log.Error("failed to look up completed payroll entry", zap.Error(err))
		return out
	}

	now := s.clock.Now()
	entry := &payrolldomain.PayrollEntry{
		ID:             s.genID.Generate(),
		RunID:          plan.run.ID,
		EmployeeID:     emp.ID,
		EmployerID:     plan.req.EmployerID,
		PayPeriodStart: plan.req.StartDate,
		PayPeriodEnd:   plan.req.EndDate,
		PayDate:        plan.req.PayDate,
		Status:         payrolldomain.EntryStatusPending,
		ProcessedBy:    plan.req.ProcessedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		kind := classify(err)
		out.fail(emp.ID, 0, kind, err)
		s.recordEmployeeError(kind)
		span.RecordError(err)
		log.Error("failed to create payroll entry", zap.Error(err))
		return out
	}

	res, err := s.computeEntry(ctx, plan, emp, entry)
	if err != nil {
		kind := classify(err)
		// The entry must leave pending even when the run context is done.
		if ferr := s.repo.FailEntry(context.WithoutCancel(ctx), entry.ID, err.Error(), s.clock.Now()); ferr != nil {
			log.Error("failed to mark payroll entry as error", zap.String("entry_id", entry.ID.String()), zap.Error(ferr))
		}
		// Another process completed the period between the lookup and the
		// commit.
		if errors.Is(err, payrolldomain.ErrAlreadyCompleted) {
			if winner, ferr := s.repo.FindCompletedEntry(ctx, emp.ID, plan.req.StartDate, plan.req.EndDate); ferr == nil {
				out.skip(emp.ID, winner.ID)
				s.metrics.IncEmployee(employeeStatusAlreadyProcessed)
				log.Warn("employee skipped, period completed concurrently", zap.String("entry_id", winner.ID.String()))
				return out
			}
		}
		out.fail(emp.ID, entry.ID, kind, err)
		s.recordEmployeeError(kind)
		s.metrics.IncEmployee(string(payrolldomain.EntryStatusError))
		s.obsMetrics.RecordEntry(ctx, string(payrolldomain.EntryStatusError))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		log.Warn("employee payroll failed", zap.String("kind", string(kind)), zap.Error(err))
		return out
	}

	s.metrics.IncEmployee(string(payrolldomain.EntryStatusCompleted))
	s.obsMetrics.RecordEntry(ctx, string(payrolldomain.EntryStatusCompleted))
	s.recordWithheld(ctx, res)
	if res.StateFallbackUsed {
		log.Warn("state tax approximated with flat fallback rate", zap.String("state", res.StateJurisdiction))
	}
	if res.NegativeNet {
		log.Warn("withholding exceeds gross pay", zap.String("net_pay", res.NetPay.StringFixed(money.CentPlaces)))
	}

	processed := &payrolldomain.ProcessedEntry{
		EntryID:           entry.ID,
		EmployeeID:        emp.ID,
		EmployeeName:      emp.Name,
		GrossPay:          entry.GrossPay,
		TotalTaxes:        entry.TotalTaxes(),
		NetPay:            entry.NetPay,
		NegativeNet:       res.NegativeNet,
		StateFallbackUsed: res.StateFallbackUsed,
	}
	out.processed = processed

	if err := s.disburse(ctx, emp, entry, processed, log); err != nil {
		out.fail(emp.ID, entry.ID, payrolldomain.ErrorKindDisbursement, err)
		s.recordEmployeeError(payrolldomain.ErrorKindDisbursement)
	}
	return out
}

const maxTxAttempts = 3

const employeeStatusAlreadyProcessed = "already_processed"

// computeEntry reads the collaborators, then runs YTD, withholding and the
// entry update in one transaction so the YTD read cannot move before the
// entry commits.
func (s *Service) computeEntry(ctx context.Context, plan runPlan, emp employeedomain.Employee, entry *payrolldomain.PayrollEntry) (withholding.Result, error) {
	year := plan.snap.Year()
	profile, err := s.directory.GetEmployeeTaxProfile(ctx, emp.ID, year)
	if err != nil {
		return withholding.Result{}, stageErr(payrolldomain.ErrorKindPersistence, fmt.Errorf("load tax profile: %w", err))
	}
	if profile == nil {
		return withholding.Result{}, fmt.Errorf("%w: employee=%s year=%d", payrolldomain.ErrMissingTaxProfile, emp.ID, year)
	}

	entries, err := s.timeTracker.ListApprovedTimeEntries(ctx, emp.ID, plan.req.StartDate, plan.req.EndDate)
	if err != nil {
		return withholding.Result{}, stageErr(payrolldomain.ErrorKindTimeTracking, err)
	}
	pay, err := grosspay.Calculate(entries, grosspay.Period{Start: plan.req.StartDate, End: plan.req.EndDate}, grosspay.Rates{
		Regular:  emp.RegularRate,
		Overtime: emp.OvertimeRate,
	}, plan.gross)
	if err != nil {
		return withholding.Result{}, stageErr(payrolldomain.ErrorKindComputation, err)
	}

	var res withholding.Result
	for attempt := 1; ; attempt++ {
		res, err = s.completeInTx(ctx, plan, emp, *profile, pay, entry)
		if err == nil || attempt >= maxTxAttempts || !db.IsRetryableTxErr(err) {
			return res, err
		}
		plan.log.Warn("retrying payroll entry transaction",
			zap.String("employee_id", emp.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (s *Service) completeInTx(ctx context.Context, plan runPlan, emp employeedomain.Employee, profile employeedomain.EmployeeTaxProfile, pay grosspay.Result, entry *payrolldomain.PayrollEntry) (withholding.Result, error) {
	var res withholding.Result
	year := plan.snap.Year()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prior, err := s.aggregator.Aggregate(ctx, tx, emp.ID, year, entry.ID)
		if err != nil {
			return err
		}

		res, err = withholding.Calculate(withholding.Input{
			GrossPay:         pay.GrossPay,
			PreTaxDeductions: emp.PreTaxDeductions,
			Profile:          profile,
			YTD:              prior,
		}, plan.snap, plan.withholding)
		if err != nil {
			if errors.Is(err, taxrefdomain.ErrMissingReferenceData) {
				return err
			}
			return stageErr(payrolldomain.ErrorKindComputation, err)
		}

		now := s.clock.Now()
		completed := *entry
		completed.HoursWorked = pay.HoursWorked
		completed.RegularHours = pay.RegularHours
		completed.OvertimeHours = pay.OvertimeHours
		completed.RegularPay = pay.RegularPay
		completed.OvertimePay = pay.OvertimePay
		completed.GrossPay = res.GrossPay
		completed.FederalTax = res.FederalTax
		completed.StateTax = res.StateTax
		completed.SocialSecurity = res.SocialSecurity
		completed.Medicare = res.Medicare
		completed.LocalTax = res.LocalTax
		completed.NetPay = res.NetPay
		completed.UpdatedAt = now

		repo := s.repo.WithTx(tx)
		if err := repo.CompleteEntry(ctx, &completed); err != nil {
			return err
		}

		after := prior.Add(completed)
		if err := repo.CreateTaxCalculation(ctx, &payrolldomain.TaxCalculation{
			ID:                      s.genID.Generate(),
			PayrollEntryID:          entry.ID,
			EmployeeID:              emp.ID,
			TaxYear:                 year,
			FilingStatus:            string(profile.FilingStatus),
			StateJurisdiction:       res.StateJurisdiction,
			StateFallbackUsed:       res.StateFallbackUsed,
			FederalBracketOrder:     res.FederalBracketOrder,
			FederalTaxable:          res.FederalTaxable,
			FederalAnnualized:       res.FederalAnnualized,
			StateTaxable:            res.StateTaxable,
			SocialSecurityWages:     res.SocialSecurityWages,
			MedicareWages:           res.MedicareWages,
			AdditionalMedicareWages: res.AdditionalMedicareWages,
			FederalTax:              res.FederalTax,
			StateTax:                res.StateTax,
			SocialSecurity:          res.SocialSecurity,
			Medicare:                res.Medicare,
			AdditionalMedicare:      res.AdditionalMedicare,
			LocalTax:                res.LocalTax,
			YtdGrossPay:             after.GrossPay,
			YtdFederalTax:           after.FederalTax,
			YtdStateTax:             after.StateTax,
			YtdSocialSecurity:       after.SocialSecurity,
			YtdMedicare:             after.Medicare,
			YtdLocalTax:             after.LocalTax,
			YtdNetPay:               after.NetPay,
			CreatedAt:               now,
		}); err != nil {
			return err
		}

		*entry = completed
		return nil
	})
	if err != nil {
		return withholding.Result{}, err
	}
	return res, nil
}

// disburse credits net pay after the entry committed. A failure leaves the
// entry completed; the operator retries the credit separately.
func (s *Service) disburse(ctx context.Context, emp employeedomain.Employee, entry *payrolldomain.PayrollEntry, processed *payrolldomain.ProcessedEntry, log *zap.Logger) error {
	if !emp.DirectDeposit {
		return nil
	}
	if !entry.NetPay.IsPositive() {
		s.obsMetrics.RecordDisbursement(ctx, "skipped")
		log.Info("disbursement skipped, net pay not positive", zap.String("net_pay", entry.NetPay.StringFixed(money.CentPlaces)))
		return nil
	}
	if emp.WalletID == nil || *emp.WalletID == 0 {
		s.obsMetrics.RecordDisbursement(ctx, "failed")
		return payrolldomain.ErrMissingWallet
	}
	if s.disburser == nil {
		s.obsMetrics.RecordDisbursement(ctx, "skipped")
		log.Warn("disbursement skipped, no ledger configured")
		return nil
	}

	ctx, span := tracing.Tracer().Start(ctx, "payroll.disburse")
	defer span.End()

	memo := fmt.Sprintf("net pay %s to %s entry %s",
		entry.PayPeriodStart.Format(time.DateOnly),
		entry.PayPeriodEnd.Format(time.DateOnly),
		entry.ID,
	)
	txn, err := s.disburser.Credit(ctx, *emp.WalletID, entry.NetPay, memo)
	if err != nil {
		s.obsMetrics.RecordDisbursement(ctx, "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "credit failed")
		log.Warn("disbursement failed", zap.String("wallet_id", emp.WalletID.String()), zap.Error(err))
		return fmt.Errorf("credit wallet %s: %w", emp.WalletID, err)
	}

	s.obsMetrics.RecordDisbursement(ctx, "succeeded")
	processed.Disbursed = true
	if txn != nil {
		processed.TransactionRef = txn.Reference
	}
	return nil
}

func (s *Service) finishRun(ctx context.Context, run *payrolldomain.PayrollRun, result *payrolldomain.RunResult, log *zap.Logger) {
	finished := s.clock.Now()
	run.Status = result.Status
	run.ProcessedCount = len(result.Processed)
	run.ErrorCount = len(result.Errors)
	run.FinishedAt = &finished

	raw, err := json.Marshal(result.Errors)
	if err != nil {
		log.Error("failed to encode run errors", zap.Error(err))
		raw = []byte("[]")
	}
	run.Errors = datatypes.JSON(raw)

	if err := s.repo.FinishRun(ctx, run); err != nil {
		log.Error("failed to record payroll run outcome", zap.Error(err))
	}
}

func (s *Service) recordEmployeeError(kind payrolldomain.ErrorKind) {
	s.metrics.IncEmployeeError(string(kind))
}

func (s *Service) recordWithheld(ctx context.Context, res withholding.Result) {
	if s.obsMetrics == nil {
		return
	}
	for component, amount := range map[string]decimal.Decimal{
		"federal":         res.FederalTax,
		"state":           res.StateTax,
		"social_security": res.SocialSecurity,
		"medicare":        res.Medicare,
		"local":           res.LocalTax,
	} {
		value, _ := amount.Float64()
		s.obsMetrics.RecordWithheld(ctx, component, value)
	}
}

func normalizeRequest(req payrolldomain.ProcessRequest) (payrolldomain.ProcessRequest, error) {
	if req.EmployerID == 0 {
		return req, payrolldomain.ErrInvalidEmployer
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return req, payrolldomain.ErrInvalidPeriod
	}
	req.StartDate = dateOnly(req.StartDate)
	req.EndDate = dateOnly(req.EndDate)
	if req.EndDate.Before(req.StartDate) {
		return req, payrolldomain.ErrInvalidPeriod
	}
	if req.PayDate.IsZero() {
		return req, payrolldomain.ErrInvalidPayDate
	}
	req.PayDate = dateOnly(req.PayDate)
	req.ProcessedBy = strings.TrimSpace(req.ProcessedBy)
	if req.ProcessedBy == "" {
		return req, payrolldomain.ErrInvalidProcessedBy
	}
	return req, nil
}

func grossOptionsFromConfig(cfg config.PayrollConfig) grosspay.Options {
	return grosspay.Options{
		OvertimeMultiplier: decimal.NewFromFloat(cfg.OvertimeMultiplier),
		WeeklyThreshold:    decimal.NewFromFloat(cfg.WeeklyOvertimeThreshold),
	}
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
