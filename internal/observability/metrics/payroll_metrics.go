package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusRejected  = "rejected"
)

const (
	SnapshotCacheHit  = "hit"
	SnapshotCacheMiss = "miss"
)

// PayrollMetrics captures payroll run health for operators.
type PayrollMetrics struct {
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	employees       *prometheus.CounterVec
	employeeErrors  *prometheus.CounterVec
	refdataUpserts  *prometheus.CounterVec
	snapshotLookups *prometheus.CounterVec
	yearLockWait    prometheus.Histogram
}

var (
	payrollMetricsOnce sync.Once
	payrollMetrics     *PayrollMetrics
)

// NewPayrollMetrics returns the process-wide payroll metrics registered on
// the default registerer.
func NewPayrollMetrics(cfg Config) *PayrollMetrics {
	payrollMetricsOnce.Do(func() {
		payrollMetrics = newPayrollMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return payrollMetrics
}

// NewPayrollMetricsWithRegistry builds an isolated instance, for tests.
func NewPayrollMetricsWithRegistry(registerer prometheus.Registerer) *PayrollMetrics {
	return newPayrollMetrics(registerer, Config{ServiceName: "payrun", Environment: "test"})
}

func newPayrollMetrics(registerer prometheus.Registerer, cfg Config) *PayrollMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payrun"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrun_runs_total",
		Help:        "Payroll runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"status"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "payrun_run_duration_seconds",
		Help:        "Wall time of a payroll run across all employees.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	})
	employees := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrun_employees_processed_total",
		Help:        "Employees processed by terminal entry status.",
		ConstLabels: constLabels,
	}, []string{"status"})
	employeeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrun_employee_errors_total",
		Help:        "Per-employee failures by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	refdataUpserts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrun_refdata_upserts_total",
		Help:        "Reference data replacements by table.",
		ConstLabels: constLabels,
	}, []string{"table"})
	snapshotLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payrun_refdata_snapshot_lookups_total",
		Help:        "Tax year snapshot cache lookups.",
		ConstLabels: constLabels,
	}, []string{"result"})
	yearLockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "payrun_refdata_year_lock_wait_seconds",
		Help:        "Time spent waiting for a tax year lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		runs,
		runDuration,
		employees,
		employeeErrors,
		refdataUpserts,
		snapshotLookups,
		yearLockWait,
	)

	return &PayrollMetrics{
		runs:            runs,
		runDuration:     runDuration,
		employees:       employees,
		employeeErrors:  employeeErrors,
		refdataUpserts:  refdataUpserts,
		snapshotLookups: snapshotLookups,
		yearLockWait:    yearLockWait,
	}
}

func (m *PayrollMetrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *PayrollMetrics) ObserveRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

func (m *PayrollMetrics) IncEmployee(status string) {
	if m == nil {
		return
	}
	m.employees.WithLabelValues(status).Inc()
}

func (m *PayrollMetrics) IncEmployeeError(kind string) {
	if m == nil {
		return
	}
	m.employeeErrors.WithLabelValues(kind).Inc()
}

func (m *PayrollMetrics) IncRefdataUpsert(table string) {
	if m == nil {
		return
	}
	m.refdataUpserts.WithLabelValues(table).Inc()
}

func (m *PayrollMetrics) IncSnapshotLookup(result string) {
	if m == nil {
		return
	}
	m.snapshotLookups.WithLabelValues(result).Inc()
}

func (m *PayrollMetrics) ObserveYearLockWait(d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.yearLockWait.Observe(d.Seconds())
}

// RunStatus classifies a finished run from its counts.
func RunStatus(processed, failed int) string {
	switch {
	case failed == 0:
		return RunStatusSucceeded
	case processed == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}
