package taxref

import (
	"github.com/smallbiznis/payrun/internal/taxref/repository"
	"github.com/smallbiznis/payrun/internal/taxref/service"
	"go.uber.org/fx"
)

var Module = fx.Module("taxref.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewYearLocks),
	fx.Provide(service.NewService),
)
