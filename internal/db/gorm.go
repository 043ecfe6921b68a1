package db

import (
	"fmt"

	"docsync/internal/config"
	"docsync/internal/logging"
	"docsync/internal/models"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm opens the document database. The collaboration server only reads
// from it, so no migration happens here; see Migrate.
func NewGorm(cfg *config.Config) (*GormDB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.DefaultLogger().Info("✓ Database connected")

	return &GormDB{db}, nil
}

// shareNotifyFunction publishes the document id of every changed share row
// on the channel given as the trigger argument.
const shareNotifyFunction = `
CREATE OR REPLACE FUNCTION notify_document_share_change() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify(TG_ARGV[0], OLD.document_id);
		RETURN OLD;
	END IF;
	PERFORM pg_notify(TG_ARGV[0], NEW.document_id);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`

// Migrate creates the documents and document_shares tables and installs the
// share change trigger used to invalidate cached share lists.
func (db *GormDB) Migrate(notifyChannel string) error {
	if err := db.AutoMigrate(
		&models.Document{},
		&models.DocumentShare{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.Exec(shareNotifyFunction).Error; err != nil {
		return fmt.Errorf("failed to create share notify function: %w", err)
	}

	if err := db.Exec(`DROP TRIGGER IF EXISTS document_shares_notify ON document_shares`).Error; err != nil {
		return fmt.Errorf("failed to drop share notify trigger: %w", err)
	}

	// Trigger arguments are string literals, not bind parameters.
	trigger := fmt.Sprintf(`
		CREATE TRIGGER document_shares_notify
		AFTER INSERT OR UPDATE OR DELETE ON document_shares
		FOR EACH ROW EXECUTE FUNCTION notify_document_share_change(%s)`,
		pq.QuoteLiteral(notifyChannel))
	if err := db.Exec(trigger).Error; err != nil {
		return fmt.Errorf("failed to create share notify trigger: %w", err)
	}

	logging.DefaultLogger().Info("✓ Database migrated successfully")
	return nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
