package employee

import (
	"github.com/smallbiznis/payrun/internal/employee/repository"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("employee.repository",
	fx.Provide(
		fx.Annotate(repository.NewDirectory, fx.As(new(payrolldomain.EmployeeDirectory))),
		fx.Annotate(repository.NewTimeTracker, fx.As(new(payrolldomain.TimeTracker))),
	),
)
