package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"poolmarket/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connect opens the store for driver. sqlite takes a file path or a
// "file:...?mode=memory" dsn.
func Connect(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established", zap.String("driver", driver))
	return db, nil
}

// AutoMigrate creates or updates every table.
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	tables := []interface{}{
		&models.User{},
		&models.Market{},
		&models.Candidate{},
		&models.Bet{},
		&models.PricePoint{},
		&models.Claim{},
		&models.AdminUser{},
		&models.AdminLog{},
	}

	for _, model := range tables {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	log.Info("database migrations completed", zap.Int("tables", len(tables)))
	return nil
}

const notifyTriggerSQL = `
CREATE OR REPLACE FUNCTION notify_candidate_pool_changed() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('candidate_pool_changed', NEW.market_id::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS candidate_pool_changed ON candidates;

CREATE TRIGGER candidate_pool_changed
	AFTER UPDATE OF pool_amount ON candidates
	FOR EACH ROW
	WHEN (OLD.pool_amount IS DISTINCT FROM NEW.pool_amount)
	EXECUTE FUNCTION notify_candidate_pool_changed();
`

// InstallNotifyTrigger makes postgres announce candidate pool changes on the
// candidate_pool_changed channel. Other drivers have no notifications and
// are left alone.
func InstallNotifyTrigger(db *gorm.DB) error {
	if db.Dialector.Name() != DriverPostgres {
		return nil
	}
	if err := db.Exec(notifyTriggerSQL).Error; err != nil {
		return fmt.Errorf("failed to install pool trigger: %w", err)
	}
	return nil
}
