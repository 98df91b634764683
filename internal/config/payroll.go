package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PayrollConfig carries the engine constants operators may tune without a
// redeploy. Amount-like values are read as floats and converted to decimals
// at the point of use.
type PayrollConfig struct {
	PeriodsPerYear          int                `mapstructure:"periodsPerYear"`
	OvertimeMultiplier      float64            `mapstructure:"overtimeMultiplier"`
	WeeklyOvertimeThreshold float64            `mapstructure:"weeklyOvertimeThreshold"`
	NoIncomeTaxStates       []string           `mapstructure:"noIncomeTaxStates"`
	StateFallbackRate       float64            `mapstructure:"stateFallbackRate"`
	StateStandardDeductions map[string]float64 `mapstructure:"stateStandardDeductions"`

	// Off until the filing-status-aware threshold is confirmed.
	JointAdditionalMedicareThreshold bool `mapstructure:"jointAdditionalMedicareThreshold"`

	RunTimeoutSeconds int `mapstructure:"runTimeoutSeconds"`
	RunLockTTLSeconds int `mapstructure:"runLockTTLSeconds"`
	Concurrency       int `mapstructure:"concurrency"`

	Disbursement DisbursementConfig `mapstructure:"disbursement"`
}

type DisbursementConfig struct {
	MaxRetries           int `mapstructure:"maxRetries"`
	InitialBackoffMillis int `mapstructure:"initialBackoffMillis"`
}

func DefaultPayrollConfig() PayrollConfig {
	return PayrollConfig{
		PeriodsPerYear:          26,
		OvertimeMultiplier:      1.5,
		WeeklyOvertimeThreshold: 40,
		NoIncomeTaxStates:       []string{"AK", "FL", "NV", "NH", "SD", "TN", "TX", "WA", "WY"},
		StateFallbackRate:       0.05,
		StateStandardDeductions: map[string]float64{},
		RunTimeoutSeconds:       600,
		RunLockTTLSeconds:       900,
		Concurrency:             1,
		Disbursement: DisbursementConfig{
			MaxRetries:           2,
			InitialBackoffMillis: 200,
		},
	}
}

func (c PayrollConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func (c PayrollConfig) RunLockTTL() time.Duration {
	return time.Duration(c.RunLockTTLSeconds) * time.Second
}

// StateDeduction returns the annual standard deduction proxy for a state.
// Viper lower-cases map keys, so lookups are case-insensitive.
func (c PayrollConfig) StateDeduction(state string) float64 {
	state = strings.TrimSpace(state)
	for k, v := range c.StateStandardDeductions {
		if strings.EqualFold(k, state) {
			return v
		}
	}
	return 0
}

type PayrollConfigHolder struct {
	current atomic.Value // holds PayrollConfig
}

// NewStaticPayrollConfigHolder wraps a fixed config, mainly for tests.
func NewStaticPayrollConfigHolder(cfg PayrollConfig) *PayrollConfigHolder {
	holder := &PayrollConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPayrollConfigHolder(log *zap.Logger) (*PayrollConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payroll")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/payrun/config") // Volume-mounted config
	v.AddConfigPath("/etc/payrun")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	return newPayrollConfigHolder(v, log)
}

// NewPayrollConfigHolderFromFile reads an explicit file instead of searching.
func NewPayrollConfigHolderFromFile(path string, log *zap.Logger) (*PayrollConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newPayrollConfigHolder(v, log)
}

func newPayrollConfigHolder(v *viper.Viper, log *zap.Logger) (*PayrollConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("payroll.config")

	v.SetEnvPrefix("PAYRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayrollConfig()
	v.SetDefault("payroll.periodsPerYear", defaults.PeriodsPerYear)
	v.SetDefault("payroll.overtimeMultiplier", defaults.OvertimeMultiplier)
	v.SetDefault("payroll.weeklyOvertimeThreshold", defaults.WeeklyOvertimeThreshold)
	v.SetDefault("payroll.noIncomeTaxStates", defaults.NoIncomeTaxStates)
	v.SetDefault("payroll.stateFallbackRate", defaults.StateFallbackRate)
	v.SetDefault("payroll.runTimeoutSeconds", defaults.RunTimeoutSeconds)
	v.SetDefault("payroll.runLockTTLSeconds", defaults.RunLockTTLSeconds)
	v.SetDefault("payroll.concurrency", defaults.Concurrency)
	v.SetDefault("payroll.disbursement.maxRetries", defaults.Disbursement.MaxRetries)
	v.SetDefault("payroll.disbursement.initialBackoffMillis", defaults.Disbursement.InitialBackoffMillis)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := unmarshalPayrollConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &PayrollConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		log.Info("payroll config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalPayrollConfig(v)
		if err != nil {
			log.Warn("payroll config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("payroll config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PayrollConfigHolder) Get() PayrollConfig {
	return h.current.Load().(PayrollConfig)
}

func unmarshalPayrollConfig(v *viper.Viper) (PayrollConfig, error) {
	// Unmarshal over AllSettings so file values merge with nested defaults.
	var doc struct {
		Payroll PayrollConfig `mapstructure:"payroll"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return PayrollConfig{}, err
	}
	cfg := doc.Payroll
	for i, state := range cfg.NoIncomeTaxStates {
		cfg.NoIncomeTaxStates[i] = strings.ToUpper(strings.TrimSpace(state))
	}
	if cfg.StateStandardDeductions == nil {
		cfg.StateStandardDeductions = map[string]float64{}
	}
	if err := validatePayrollConfig(cfg); err != nil {
		return PayrollConfig{}, err
	}
	return cfg, nil
}

func validatePayrollConfig(cfg PayrollConfig) error {
	if cfg.PeriodsPerYear <= 0 {
		return errors.New("payroll.periodsPerYear must be positive")
	}
	if cfg.OvertimeMultiplier < 1 {
		return errors.New("payroll.overtimeMultiplier must be at least 1")
	}
	if cfg.WeeklyOvertimeThreshold <= 0 {
		return errors.New("payroll.weeklyOvertimeThreshold must be positive")
	}
	if cfg.StateFallbackRate < 0 || cfg.StateFallbackRate > 1 {
		return errors.New("payroll.stateFallbackRate must be within [0,1]")
	}
	for state, amount := range cfg.StateStandardDeductions {
		if amount < 0 {
			return fmt.Errorf("payroll.stateStandardDeductions.%s must not be negative", state)
		}
	}
	if cfg.RunTimeoutSeconds <= 0 {
		return errors.New("payroll.runTimeoutSeconds must be positive")
	}
	if cfg.RunLockTTLSeconds <= 0 {
		return errors.New("payroll.runLockTTLSeconds must be positive")
	}
	if cfg.Concurrency <= 0 {
		return errors.New("payroll.concurrency must be positive")
	}
	if cfg.Disbursement.MaxRetries < 0 || cfg.Disbursement.InitialBackoffMillis < 0 {
		return errors.New("payroll.disbursement values must not be negative")
	}
	return nil
}
