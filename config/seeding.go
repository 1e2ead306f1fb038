package config

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/policy"
)

// DemoFarmName is the farm created by RunAllSeeding.
const DemoFarmName = "Demo Farm"

// RunAllSeeding creates a demo farm with one user per role and an enabled
// daily report. It does nothing when the demo farm already exists.
func RunAllSeeding(db *gorm.DB, password string) error {
	log.Println("=== Starting Database Seeding ===")

	var existing models.Farm
	err := db.Where("name = ?", DemoFarmName).First(&existing).Error
	if err == nil {
		log.Printf("✅ %s already seeded (code %s), skipping", DemoFarmName, existing.Code)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		log.Println("[1/3] Seeding farm and users...")
		farm, err := seedFarm(tx, string(hash))
		if err != nil {
			return err
		}

		log.Println("[2/3] Seeding daily report configuration...")
		if err := seedReportConfig(tx, farm); err != nil {
			return err
		}

		log.Println("[3/3] Verifying...")
		var members int64
		tx.Model(&models.User{}).Where("farm_id = ?", farm.ID).Count(&members)
		log.Printf("✅ %s (code %s) has %d members", farm.Name, farm.Code, members)
		return nil
	})
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	log.Println("=== Database Seeding Complete ===")
	return nil
}

func seedFarm(tx *gorm.DB, passwordHash string) (*models.Farm, error) {
	usersToSeed := []struct {
		Username string
		Email    string
		Role     models.Role
	}{
		{"admin", "admin@farmops.local", models.RoleSuperuser},
		{"manager", "manager@farmops.local", models.RoleManager},
		{"accounts", "accounts@farmops.local", models.RoleFinancialManager},
		{"staff", "staff@farmops.local", models.RoleStaff},
	}

	farm := &models.Farm{Name: DemoFarmName}
	if err := tx.Create(farm).Error; err != nil {
		return nil, fmt.Errorf("create farm: %w", err)
	}

	for _, u := range usersToSeed {
		user := models.User{
			Username:     u.Username,
			Email:        u.Email,
			PasswordHash: passwordHash,
			Role:         u.Role,
			FarmID:       &farm.ID,
			HasJoined:    true,
			IsActive:     true,
			Capabilities: policy.DeriveCapabilities(u.Role),
		}
		if err := tx.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user %s: %w", u.Username, err)
		}
		if u.Role == models.RoleSuperuser {
			if err := tx.Model(farm).Update("owner_id", user.ID).Error; err != nil {
				return nil, fmt.Errorf("set farm owner: %w", err)
			}
			farm.OwnerID = user.ID
		}
		log.Printf("   👤 %s (%s)", u.Username, u.Role)
	}
	return farm, nil
}

func seedReportConfig(tx *gorm.DB, farm *models.Farm) error {
	deadline := datatypes.NewTime(17, 0, 0, 0)
	cfg := models.ReportConfig{
		FarmID:       farm.ID,
		IsEnabled:    true,
		DeadlineTime: &deadline,
	}
	if err := tx.Create(&cfg).Error; err != nil {
		return fmt.Errorf("create report config: %w", err)
	}

	for i, d := range models.DefaultQuestions() {
		q := d.Question(i)
		q.ConfigID = cfg.ID
		if err := tx.Create(&q).Error; err != nil {
			return fmt.Errorf("create question %q: %w", d.Text, err)
		}
	}
	return nil
}
