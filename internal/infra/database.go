package infra

import (
	"fmt"

	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies the idempotent SQL patches that GORM
// cannot express (partial indexes).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations applies the schema. Exposed separately so integration tests
// can migrate a fresh database without going through NewDatabase.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Client{},
		&model.Order{},
		&model.OrderItem{},
		&model.DailyCashSession{},
		&model.Transaction{},
		&model.CashArchiveEntry{},
		&model.ReconciliationStep{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot express.
// Each statement is guarded so re-running on an already-patched DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// partial index for the reconciliation retry sweep
		`DO $$ BEGIN
		  IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'reconciliation_steps')
		    AND NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_recon_steps_due') THEN
		    CREATE INDEX idx_recon_steps_due
		        ON reconciliation_steps (next_retry_at)
		        WHERE status = 'failed' AND next_retry_at IS NOT NULL;
		  END IF;
		END $$`,
		// composite index for date-scoped journal listings
		`DO $$ BEGIN
		  IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'transactions')
		    AND NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_transactions_date_seq') THEN
		    CREATE INDEX idx_transactions_date_seq ON transactions (date, seq);
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("schema patch: %w", err)
		}
	}
	return nil
}
