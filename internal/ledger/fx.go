package ledger

import (
	"github.com/smallbiznis/payrun/internal/config"
	ledgerdomain "github.com/smallbiznis/payrun/internal/ledger/domain"
	"github.com/smallbiznis/payrun/internal/ledger/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger.service",
	fx.Provide(service.NewService),
	fx.Provide(func(svc ledgerdomain.Service, holder *config.PayrollConfigHolder, log *zap.Logger) *service.ResilientDisburser {
		return service.NewResilientDisburser(svc, service.RetryConfigFrom(holder.Get()), log)
	}),
)
