package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestionType is the declared answer type of a report question.
type QuestionType string

const (
	QuestionTypeText    QuestionType = "text"
	QuestionTypeNumber  QuestionType = "number"
	QuestionTypeDate    QuestionType = "date"
	QuestionTypeBoolean QuestionType = "boolean"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeText, QuestionTypeNumber, QuestionTypeDate, QuestionTypeBoolean:
		return true
	}
	return false
}

// InputType tells clients whether a question came from the starter set.
type InputType string

const (
	InputTypeDefault InputType = "default"
	InputTypeCustom  InputType = "custom"
)

// ReportConfig is the per-farm daily report setup. DeadlineTime has no
// zone; the scheduler interprets it in its own reference location.
type ReportConfig struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	FarmID       uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"farm_id"`
	Farm         *Farm           `gorm:"foreignKey:FarmID" json:"-"`
	IsEnabled    bool            `gorm:"default:false;index" json:"is_enabled"`
	DeadlineTime *datatypes.Time `json:"deadline_time"`
	Questions    []Question      `gorm:"foreignKey:ConfigID" json:"questions"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (c *ReportConfig) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}

// Question is one entry of a farm's questionnaire. Deleted questions are
// soft-deleted so answers already submitted against them stay readable.
type Question struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConfigID     uuid.UUID      `gorm:"type:uuid;index;not null" json:"-"`
	Text         string         `gorm:"size:255;not null" json:"text"`
	QuestionType QuestionType   `gorm:"size:20;not null;default:text" json:"question_type"`
	IsRequired   bool           `gorm:"not null" json:"is_required"`
	InputType    InputType      `gorm:"size:20;not null;default:custom" json:"input_type"`
	SortOrder    int            `gorm:"not null;default:0;index" json:"sort_order"`
	CreatedAt    time.Time      `json:"-"`
	UpdatedAt    time.Time      `json:"-"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) (err error) {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return
}

// DailyReport is one submission per farm per reference date.
type DailyReport struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FarmID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_daily_reports_farm_date,priority:1" json:"farm_id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user"`
	User          *User          `gorm:"foreignKey:UserID" json:"-"`
	UserName      string         `gorm:"-" json:"user_name"`
	ReferenceDate Date           `gorm:"not null;uniqueIndex:idx_daily_reports_farm_date,priority:2" json:"reference_date"`
	SubmittedAt   time.Time      `gorm:"autoCreateTime" json:"submitted_at"`
	Answers       []ReportAnswer `gorm:"foreignKey:ReportID" json:"answers"`
}

func (r *DailyReport) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

func (r *DailyReport) AfterFind(tx *gorm.DB) (err error) {
	if r.User != nil {
		r.UserName = r.User.Username
	}
	return
}

// ReportAnswer holds exactly one populated value slot, matching the
// question's declared type.
type ReportAnswer struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID      uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	QuestionID    uuid.UUID `gorm:"type:uuid;index;not null" json:"question"`
	Question      *Question `gorm:"foreignKey:QuestionID" json:"-"`
	QuestionText  string    `gorm:"-" json:"question_text"`
	AnswerText    *string   `gorm:"type:text" json:"answer_text"`
	AnswerNumber  *float64  `gorm:"type:decimal(12,2)" json:"answer_number"`
	AnswerDate    *Date     `json:"answer_date"`
	AnswerBoolean *bool     `json:"answer_boolean"`
}

func (a *ReportAnswer) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}

func (a *ReportAnswer) AfterFind(tx *gorm.DB) (err error) {
	if a.Question != nil {
		a.QuestionText = a.Question.Text
	}
	return
}

// ReminderKind identifies a deadline notification window.
type ReminderKind string

const (
	ReminderDueSoon ReminderKind = "deadline_reminder"
	ReminderOverdue ReminderKind = "deadline_missed"
)

// ReminderMark records that a window already fired for a config on a date.
// Only used when reminder de-duplication is switched on.
type ReminderMark struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey"`
	ConfigID   uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reminder_marks_window,priority:1"`
	Kind       ReminderKind `gorm:"size:30;not null;uniqueIndex:idx_reminder_marks_window,priority:2"`
	WindowDate Date         `gorm:"not null;uniqueIndex:idx_reminder_marks_window,priority:3"`
	CreatedAt  time.Time
}

func (ReminderMark) TableName() string {
	return "report_reminder_marks"
}

func (m *ReminderMark) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return
}
