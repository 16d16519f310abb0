// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.StoreGroup{},
		&models.Store{},
		&models.StoreRelationship{},
		&models.StoreAccess{},
		&models.SyncOperation{},
		&models.MultiStoreInventory{},
		&models.StoreInventoryMapping{},
		&models.UnifiedCustomer{},
		&models.CustomerStoreMapping{},
		&models.ConflictResolution{},
		&models.AuditLog{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Store indexes
		"CREATE INDEX IF NOT EXISTS idx_stores_group_master ON stores(group_id, is_master)",
		"CREATE INDEX IF NOT EXISTS idx_stores_group_enabled ON stores(group_id, sync_enabled)",
		"CREATE INDEX IF NOT EXISTS idx_store_relationships_pair ON store_relationships(source_store_id, target_store_id)",

		// Sync operation indexes
		"CREATE INDEX IF NOT EXISTS idx_sync_operations_group_status ON sync_operations(group_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_sync_operations_created_at ON sync_operations(created_at DESC)",

		// Unified entity indexes
		"CREATE INDEX IF NOT EXISTS idx_multi_store_inventories_group_handle ON multi_store_inventories(group_id, handle)",
		"CREATE INDEX IF NOT EXISTS idx_store_inventory_mappings_external ON store_inventory_mappings(store_id, external_product_id)",
		"CREATE INDEX IF NOT EXISTS idx_unified_customers_group_email ON unified_customers(group_id, email)",

		// Conflict indexes
		"CREATE INDEX IF NOT EXISTS idx_conflict_resolutions_group_status ON conflict_resolutions(group_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_conflict_resolutions_type_status ON conflict_resolutions(type, status)",
		"CREATE INDEX IF NOT EXISTS idx_conflict_resolutions_created_at ON conflict_resolutions(created_at DESC)",

		// Audit indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_user_action ON audit_logs(user_id, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
