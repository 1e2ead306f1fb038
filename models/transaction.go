package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

type Transaction struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	FarmID         uuid.UUID       `gorm:"type:uuid;index;not null" json:"farm"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null" json:"user"`
	Date           Date            `gorm:"not null;index" json:"date" validate:"required"`
	Type           TransactionType `gorm:"size:10;not null" json:"type" validate:"required,oneof=income expense"`
	Category       string          `gorm:"size:50;not null" json:"category" validate:"required,oneof=feed birds eggs medication equipment labor other"`
	Amount         float64         `gorm:"type:decimal(12,2);not null" json:"amount" validate:"gt=0"`
	Description    string          `gorm:"type:text" json:"description"`
	RelatedFlockID *uuid.UUID      `gorm:"type:uuid;index" json:"related_flock,omitempty"`
	CreatedAt      time.Time       `json:"-"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}
