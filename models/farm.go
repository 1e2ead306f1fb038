package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Farm is the tenant. Code is generated on create and never written again.
type Farm struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Code      string    `gorm:"<-:create;size:10;uniqueIndex;not null" json:"code"`
	OwnerID   uuid.UUID `gorm:"type:uuid;index" json:"owner"`
	CreatedAt time.Time `json:"created_at"`

	Members      []User        `gorm:"foreignKey:FarmID" json:"-"`
	ReportConfig *ReportConfig `gorm:"foreignKey:FarmID" json:"-"`
}

func (f *Farm) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Code == "" {
		f.Code = NewFarmCode()
	}
	return
}

// NewFarmCode returns an 8 character upper-case join code.
func NewFarmCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}
