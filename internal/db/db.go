package db

import (
	"fmt"
	"time"

	"anonuplift/internal/jobs"
	"anonuplift/internal/message"
	"anonuplift/internal/owner"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&owner.Owner{},
		&owner.Reservation{},
		&message.Message{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	stmts := []string{
		// inbox listing
		`create index if not exists idx_messages_recipient_created on messages(recipient_id, created_at desc) where deleted = false;`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return jobs.EnsureIndexes(gdb)
}
