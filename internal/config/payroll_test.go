package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePayrollFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payroll.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPayrollConfigFileMergesDefaults(t *testing.T) {
	path := writePayrollFile(t, `
payroll:
  periodsPerYear: 52
  noIncomeTaxStates: [tx, " fl "]
  stateStandardDeductions:
    CA: 5363
`)

	holder, err := NewPayrollConfigHolderFromFile(path, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 52, cfg.PeriodsPerYear)
	assert.Equal(t, 1.5, cfg.OvertimeMultiplier)
	assert.Equal(t, float64(40), cfg.WeeklyOvertimeThreshold)
	assert.Equal(t, []string{"TX", "FL"}, cfg.NoIncomeTaxStates)
	assert.Equal(t, float64(5363), cfg.StateDeduction("ca"))
	assert.Equal(t, float64(0), cfg.StateDeduction("NY"))
	assert.False(t, cfg.JointAdditionalMedicareThreshold)
}

func TestPayrollConfigRejectsInvalidValues(t *testing.T) {
	path := writePayrollFile(t, `
payroll:
  periodsPerYear: 0
`)

	_, err := NewPayrollConfigHolderFromFile(path, zap.NewNop())
	assert.ErrorContains(t, err, "periodsPerYear")
}

func TestValidatePayrollConfigDefaults(t *testing.T) {
	assert.NoError(t, validatePayrollConfig(DefaultPayrollConfig()))

	cfg := DefaultPayrollConfig()
	cfg.StateFallbackRate = 1.2
	assert.Error(t, validatePayrollConfig(cfg))

	cfg = DefaultPayrollConfig()
	cfg.Concurrency = 0
	assert.Error(t, validatePayrollConfig(cfg))
}

func TestStaticHolder(t *testing.T) {
	cfg := DefaultPayrollConfig()
	cfg.Concurrency = 4
	holder := NewStaticPayrollConfigHolder(cfg)
	assert.Equal(t, 4, holder.Get().Concurrency)
	assert.Equal(t, int64(600), int64(holder.Get().RunTimeout().Seconds()))
}
