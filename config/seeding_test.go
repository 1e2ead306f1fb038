package config_test

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
	"p9e.in/farmops/config"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/testutil"
)

func TestRunAllSeeding(t *testing.T) {
	db := testutil.OpenTestDB(t)

	for i := 0; i < 2; i++ {
		if err := config.RunAllSeeding(db, "pw"); err != nil {
			t.Fatalf("RunAllSeeding (run %d): %v", i+1, err)
		}
	}

	var farms []models.Farm
	db.Find(&farms)
	if len(farms) != 1 {
		t.Fatalf("expected seeding to be idempotent, got %d farms", len(farms))
	}
	farm := farms[0]
	if len(farm.Code) != 8 {
		t.Errorf("expected an 8 character farm code, got %q", farm.Code)
	}

	var users []models.User
	db.Where("farm_id = ?", farm.ID).Order("username").Find(&users)
	if len(users) != 4 {
		t.Fatalf("expected one user per role, got %d", len(users))
	}
	for _, u := range users {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("pw")); err != nil {
			t.Errorf("user %s: password does not match", u.Username)
		}
		switch u.Role {
		case models.RoleSuperuser:
			if !u.CanManageUsers || farm.OwnerID != u.ID {
				t.Errorf("expected superuser to own the farm and manage users")
			}
		case models.RoleStaff:
			if !u.CanAddLogs || u.CanManageFinances {
				t.Errorf("unexpected staff capabilities %+v", u.Capabilities)
			}
		}
	}

	var cfg models.ReportConfig
	if err := db.Preload("Questions").Where("farm_id = ?", farm.ID).First(&cfg).Error; err != nil {
		t.Fatalf("load report config: %v", err)
	}
	if !cfg.IsEnabled || cfg.DeadlineTime == nil || cfg.DeadlineTime.String() != "17:00:00" {
		t.Errorf("unexpected report config %+v", cfg)
	}
	if len(cfg.Questions) != len(models.DefaultQuestions()) {
		t.Errorf("expected %d default questions, got %d", len(models.DefaultQuestions()), len(cfg.Questions))
	}
}
