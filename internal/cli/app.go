package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/clock"
	"github.com/smallbiznis/payrun/internal/config"
	"github.com/smallbiznis/payrun/internal/employee"
	"github.com/smallbiznis/payrun/internal/ledger"
	"github.com/smallbiznis/payrun/internal/lock"
	"github.com/smallbiznis/payrun/internal/migration"
	"github.com/smallbiznis/payrun/internal/observability"
	"github.com/smallbiznis/payrun/internal/payroll"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	"github.com/smallbiznis/payrun/internal/taxref"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"github.com/smallbiznis/payrun/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const stopTimeout = 15 * time.Second

// deps is what a command needs from the container.
type deps struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Payroll payrolldomain.Service
	TaxRef  taxrefdomain.Service
}

func appOptions() []fx.Option {
	opts := []fx.Option{
		fx.NopLogger,

		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		taxref.Module,
		employee.Module,
		ledger.Module,
		lock.Module,
		payroll.Module,
	}
	if payrollConfigPath != "" {
		path := payrollConfigPath
		opts = append(opts, fx.Decorate(func(log *zap.Logger) (*config.PayrollConfigHolder, error) {
			return config.NewPayrollConfigHolderFromFile(path, log)
		}))
	}
	return opts
}

func newSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

// withApp starts the container, hands its services to fn and stops the
// container afterwards, whatever fn returns.
func withApp(ctx context.Context, fn func(ctx context.Context, d deps) error) (err error) {
	var d deps
	app := fx.New(append(appOptions(), fx.Invoke(func(in deps) { d = in }))...)
	if err := app.Err(); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	return fn(ctx, d)
}
