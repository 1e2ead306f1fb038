// models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is one of the fixed farm roles.
type Role string

const (
	RoleStaff            Role = "staff"
	RoleManager          Role = "manager"
	RoleFinancialManager Role = "financial_manager"
	RoleSuperuser        Role = "superuser"
)

// Roles lists every valid role, lowest privilege first.
var Roles = []Role{RoleStaff, RoleFinancialManager, RoleManager, RoleSuperuser}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Capabilities are the boolean permission flags stored on a user. They are
// derived from the role whenever the role is written.
type Capabilities struct {
	CanManageFlocks   bool `gorm:"default:false" json:"can_manage_flocks"`
	CanManageFinances bool `gorm:"default:false" json:"can_manage_finances"`
	CanManageUsers    bool `gorm:"default:false" json:"can_manage_users"`
	CanAddLogs        bool `gorm:"default:false" json:"can_add_logs"`
}

type User struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username            string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email               string     `gorm:"size:254" json:"email"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	Role                Role       `gorm:"size:50;not null;default:staff;index" json:"role"`
	FarmID              *uuid.UUID `gorm:"type:uuid;index" json:"farm_id,omitempty"`
	Farm                *Farm      `gorm:"foreignKey:FarmID" json:"farm,omitempty"`
	InvitationCode      *string    `gorm:"size:10;uniqueIndex" json:"-"`
	IsPasswordTemporary bool       `gorm:"default:false" json:"is_password_temporary"`
	HasJoined           bool       `gorm:"default:false" json:"has_joined"`
	IsActive            bool       `gorm:"default:true" json:"is_active"`

	Capabilities `gorm:"embedded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}

// Principal returns the request-scoped view of the user.
func (u *User) Principal() Principal {
	return Principal{
		UserID:       u.ID,
		Username:     u.Username,
		FarmID:       u.FarmID,
		Role:         u.Role,
		Capabilities: u.Capabilities,
	}
}
