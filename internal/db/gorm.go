package db

import (
	"fmt"
	"log"

	"collabd/internal/config"
	"collabd/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance backing the edit archive.
type GormDB struct {
	*gorm.DB
}

// NewGorm connects to postgres and migrates the archive schema.
// Only called when ARCHIVE_ENABLED is set; live sessions never touch the database.
func NewGorm(cfg *config.Config) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	// Open the connection (pgx underneath the GORM postgres driver)
	// Warn level keeps per-edit INSERTs out of the log
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("✓ Database connected and migrated successfully")

	return &GormDB{db}, nil
}

// Migrate creates or updates the edit_operations table and its
// (document_id, version) index from the EditOperation struct.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.EditOperation{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
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
