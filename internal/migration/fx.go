package migration

import (
	"github.com/smallbiznis/payrun/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates on startup when DATABASE_AUTO_MIGRATE is set. The migrate
// command calls Migrate directly.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		if err := Migrate(conn, cfg.DBType); err != nil {
			return err
		}
		log.Named("migration").Info("schema migrated", zap.String("db_type", cfg.DBType))
		return nil
	}),
)
