package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	employeedomain "github.com/smallbiznis/payrun/internal/employee/domain"
	ledgerdomain "github.com/smallbiznis/payrun/internal/ledger/domain"
	payrolldomain "github.com/smallbiznis/payrun/internal/payroll/domain"
	taxrefdomain "github.com/smallbiznis/payrun/internal/taxref/domain"
	"gorm.io/gorm"
)

// Models lists every table the engine owns, in dependency order.
func Models() []any {
	return []any{
		&taxrefdomain.TaxBracket{},
		&taxrefdomain.FicaRates{},
		&taxrefdomain.TaxAllowance{},
		&employeedomain.Employee{},
		&employeedomain.EmployeeTaxProfile{},
		&employeedomain.TimeEntry{},
		&ledgerdomain.Wallet{},
		&ledgerdomain.Transaction{},
		&payrolldomain.PayrollRun{},
		&payrolldomain.PayrollEntry{},
		&payrolldomain.TaxCalculation{},
	}
}

// Migrate brings the schema up to date. Postgres uses the versioned SQL
// files; sqlite and mysql are development targets and use AutoMigrate.
func Migrate(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres", "postgresql":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		return AutoMigrate(conn)
	}
}

// completedEntryGuard is shared with the versioned postgres migration.
const completedEntryGuard = "000002_completed_entry_guard.up.sql"

func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	// MySQL has no partial indexes; there the run lock and the completed
	// entry lookup are the only guard against a second completed entry.
	if conn.Dialector.Name() == "mysql" {
		return nil
	}
	ddl, err := fs.ReadFile(embeddedMigrations, path.Join(migrationsDir, completedEntryGuard))
	if err != nil {
		return fmt.Errorf("read %s: %w", completedEntryGuard, err)
	}
	if err := conn.Exec(string(ddl)).Error; err != nil {
		return fmt.Errorf("create completed entry guard: %w", err)
	}
	return nil
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
