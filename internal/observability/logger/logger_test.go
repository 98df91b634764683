package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsRunFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := ContextWithRun(context.Background(), "42", "7")
	WithEmployee(WithContext(ctx, base), "9").Info("computed")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "42", fields["run_id"])
	assert.Equal(t, "7", fields["employer_id"])
	assert.Equal(t, "9", fields["employee_id"])
}

func TestWithContextWithoutRun(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM payroll_entries":              "SELECT",
		"  insert into tax_calculations values (1)": "INSERT",
		"WITH x AS (SELECT 1) UPDATE wallets":        "SELECT",
		"":                                           "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT id FROM payroll_entries WHERE id = ?":      "payroll_entries",
		"INSERT INTO tax_calculations (id) VALUES (?)":     "tax_calculations",
		`UPDATE "wallets" SET balance = balance + ?`:       "wallets",
		"SELECT count(*) FROM (SELECT 1) AS t":             "",
		"select * from Employee_Tax_Profiles where year=?": "employee_tax_profiles",
	}
	for sql, want := range cases {
		assert.Equal(t, want, tableFromSQL(sql), sql)
	}
}

func TestGormLoggerDropsParamsByDefault(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), DefaultGormLoggerConfig())
	_, params := l.ParamsFilter(context.Background(), "UPDATE wallets SET balance = ?", "1679.38")
	assert.Nil(t, params)

	cfg := DefaultGormLoggerConfig()
	cfg.LogParams = true
	l = NewGormLogger(zap.NewNop(), cfg)
	_, params = l.ParamsFilter(context.Background(), "UPDATE wallets SET balance = ?", "1679.38")
	assert.Equal(t, []interface{}{"1679.38"}, params)
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(zap.New(core), DefaultGormLoggerConfig())
	ctx := ContextWithRun(context.Background(), "42", "7")
	sql := func() (string, int64) { return "UPDATE payroll_entries SET status = ?", 1 }

	// Fast and successful: nothing at the default Warn level.
	l.Trace(ctx, time.Now(), sql, nil)
	assert.Equal(t, 0, logs.Len())

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	entries := logs.TakeAll()
	assert.Len(t, entries, 1)
	assert.Equal(t, "slow query", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "payroll_entries", fields["table"])
	assert.Equal(t, "UPDATE", fields["operation"])
	assert.Equal(t, "42", fields["run_id"])

	l.Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("query").Len())

	l.Trace(ctx, time.Now(), sql, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 1, logs.FilterMessage("query").Len())
}
