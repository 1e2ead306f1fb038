// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"p9e.in/farmops/config"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/policy"
)

// OpenTestDB returns a migrated in-memory SQLite database private to t.
func OpenTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	// A named shared-cache database lets the single pooled connection be
	// reopened without losing the schema.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := config.Migrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateFarm inserts a farm with the given name.
func CreateFarm(t testing.TB, db *gorm.DB, name string) *models.Farm {
	t.Helper()
	farm := &models.Farm{Name: name}
	if err := db.Create(farm).Error; err != nil {
		t.Fatalf("create farm: %v", err)
	}
	return farm
}

// CreateUser inserts an active member of farm with capabilities derived
// from role. A nil farm creates a user that has not joined any farm.
func CreateUser(t testing.TB, db *gorm.DB, farm *models.Farm, username string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Username:     username,
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
		Capabilities: policy.DeriveCapabilities(role),
	}
	if farm != nil {
		user.FarmID = &farm.ID
		user.HasJoined = true
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateConfig inserts a report config for farm with a deadline of h:m.
func CreateConfig(t testing.TB, db *gorm.DB, farm *models.Farm, enabled bool, h, m int) *models.ReportConfig {
	t.Helper()
	deadline := datatypes.NewTime(h, m, 0, 0)
	cfg := &models.ReportConfig{
		FarmID:       farm.ID,
		IsEnabled:    enabled,
		DeadlineTime: &deadline,
	}
	if err := db.Create(cfg).Error; err != nil {
		t.Fatalf("create config: %v", err)
	}
	return cfg
}

// CreateQuestion appends a question to cfg.
func CreateQuestion(t testing.TB, db *gorm.DB, cfg *models.ReportConfig, text string, qt models.QuestionType, required bool, order int) *models.Question {
	t.Helper()
	q := &models.Question{
		ConfigID:     cfg.ID,
		Text:         text,
		QuestionType: qt,
		IsRequired:   required,
		InputType:    models.InputTypeCustom,
		SortOrder:    order,
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

// Clock is a settable time source for code that takes a now func.
type Clock struct {
	T time.Time
}

func (c *Clock) Now() time.Time { return c.T }
