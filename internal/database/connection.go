// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
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
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
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
	return DB, nil
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

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.Clinic{},
		&models.ClinicBillingProfile{},
		&models.Professional{},
		&models.CommissionRule{},
		&models.ProviderContract{},
		&models.Sale{},
		&models.SaleLine{},
		&models.CommissionLedgerEntry{},
		&models.ClosingBatch{},
		&models.ProviderDisbursement{},
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
		// Professional indexes
		"CREATE INDEX IF NOT EXISTS idx_professionals_clinic_status ON professionals(clinic_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_professionals_email ON professionals(email)",

		// Commission rule indexes
		"CREATE INDEX IF NOT EXISTS idx_commission_rules_clinic_active ON commission_rules(clinic_id, active)",
		"CREATE INDEX IF NOT EXISTS idx_commission_rules_item ON commission_rules(item_id) WHERE item_id IS NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_commission_rules_category ON commission_rules(category_id) WHERE category_id IS NOT NULL",

		// Provider contract indexes
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_provider_contracts_active_unique ON provider_contracts(clinic_id, provider_id, service_id) WHERE active AND deleted_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_provider_contracts_service ON provider_contracts(service_id)",

		// Sale indexes
		"CREATE INDEX IF NOT EXISTS idx_sales_clinic_status ON sales(clinic_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_sales_finalized_at ON sales(finalized_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_sale_lines_sale ON sale_lines(sale_id)",
		"CREATE INDEX IF NOT EXISTS idx_sale_lines_performer ON sale_lines(performed_by_id)",

		// Ledger indexes
		"CREATE INDEX IF NOT EXISTS idx_ledger_professional_status ON commission_ledger_entries(professional_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_ledger_clinic_created ON commission_ledger_entries(clinic_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_closing_batches_professional ON closing_batches(professional_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_disbursements_provider_status ON provider_disbursements(provider_id, status)",

		// Audit indexes
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_user_action ON audit_logs(user_id, action)",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
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
