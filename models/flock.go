package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Flock struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FarmID          uuid.UUID `gorm:"type:uuid;index;not null" json:"farm"`
	UserID          uuid.UUID `gorm:"type:uuid;not null" json:"user"`
	Name            string    `gorm:"size:100;not null" json:"name" validate:"required,max=100"`
	Breed           string    `gorm:"size:100" json:"breed" validate:"max=100"`
	InitialQuantity int       `gorm:"not null" json:"initial_quantity" validate:"gte=0"`
	CurrentQuantity int       `gorm:"not null" json:"current_quantity" validate:"gte=0"`
	DateAdded       Date      `json:"date_added"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}

func (f *Flock) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.DateAdded.IsZero() {
		f.DateAdded = NewDate(time.Now())
	}
	return
}

type FeedLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FlockID    uuid.UUID `gorm:"type:uuid;index;not null" json:"flock"`
	Date       Date      `gorm:"not null" json:"date" validate:"required"`
	QuantityKg float64   `gorm:"type:decimal(10,2);not null" json:"quantity_kg" validate:"gt=0"`
	FeedType   string    `gorm:"size:100" json:"feed_type" validate:"max=100"`
	Cost       float64   `gorm:"type:decimal(10,2);default:0" json:"cost" validate:"gte=0"`
	CreatedAt  time.Time `json:"-"`
}

func (l *FeedLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return
}

type HealthLogType string

const (
	HealthLogVaccination HealthLogType = "vaccination"
	HealthLogMedication  HealthLogType = "medication"
	HealthLogMortality   HealthLogType = "mortality"
	HealthLogOther       HealthLogType = "other"
)

type HealthLog struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	FlockID       uuid.UUID     `gorm:"type:uuid;index;not null" json:"flock"`
	Date          Date          `gorm:"not null" json:"date" validate:"required"`
	LogType       HealthLogType `gorm:"size:20;not null" json:"log_type" validate:"required,oneof=vaccination medication mortality other"`
	Description   string        `gorm:"type:text" json:"description"`
	Cost          float64       `gorm:"type:decimal(10,2);default:0" json:"cost" validate:"gte=0"`
	AffectedBirds int           `gorm:"default:0" json:"affected_birds" validate:"gte=0"`
	CreatedAt     time.Time     `json:"-"`
}

func (l *HealthLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return
}

type EggCollection struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FlockID           uuid.UUID `gorm:"type:uuid;index;not null" json:"flock"`
	Date              Date      `gorm:"not null" json:"date" validate:"required"`
	QuantityCollected int       `gorm:"not null" json:"quantity_collected" validate:"gte=0"`
	Damaged           int       `gorm:"default:0" json:"damaged" validate:"gte=0"`
	CreatedAt         time.Time `json:"-"`
}

func (c *EggCollection) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
