package payroll

import (
	ledgerservice "github.com/smallbiznis/payrun/internal/ledger/service"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	"github.com/smallbiznis/payrun/internal/payroll/repository"
	"github.com/smallbiznis/payrun/internal/payroll/service"
	"github.com/smallbiznis/payrun/internal/ytd"
	"go.uber.org/fx"
)

var Module = fx.Module("payroll.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(ytd.NewAggregator),
	fx.Provide(func(d *ledgerservice.ResilientDisburser) payrolldomain.Disburser { return d }),
	fx.Provide(service.NewService),
)
