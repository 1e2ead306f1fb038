package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "01092025_create_tenant_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Farm{}, &models.User{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("users", "farms")
			},
		},
		{
			ID: "01092025_create_report_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.ReportConfig{}, &models.Question{},
					&models.DailyReport{}, &models.ReportAnswer{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("report_answers", "daily_reports", "questions", "report_configs")
			},
		},
		{
			ID: "05092025_create_flock_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Flock{}, &models.FeedLog{}, &models.HealthLog{},
					&models.EggCollection{}, &models.Transaction{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("transactions", "egg_collections", "health_logs", "feed_logs", "flocks")
			},
		},
		{
			ID: "20092025_add_notification_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Notification{}, &models.ReminderMark{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("report_reminder_marks", "notifications")
			},
		},
	})
	return m.Migrate()
}
