package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotificationTypeWelcome          NotificationType = "welcome"
	NotificationTypeDeadlineReminder NotificationType = NotificationType(ReminderDueSoon)
	NotificationTypeDeadlineMissed   NotificationType = NotificationType(ReminderOverdue)
)

// NotificationStatus defines the status of a notification
type NotificationStatus string

const (
	NotificationStatusSent NotificationStatus = "sent"
	NotificationStatusRead NotificationStatus = "read"
)

// NotificationData is the optional structured part of a pushed notification.
type NotificationData struct {
	Type     NotificationType `json:"type"`
	ConfigID string           `json:"config_id,omitempty"`
}

// NotificationMessage is the payload of a "notification" real-time event.
type NotificationMessage struct {
	Title   string            `json:"title,omitempty"`
	Message string            `json:"message"`
	Data    *NotificationData `json:"data,omitempty"`
}

// Notification is an inbox entry kept for a recipient. Live delivery is
// fire-and-forget; the inbox row lets clients catch up after reconnecting.
type Notification struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	FarmID    *uuid.UUID         `gorm:"type:uuid;index" json:"farm_id,omitempty"`
	Type      NotificationType   `gorm:"size:50;not null;index" json:"type"`
	Title     string             `gorm:"size:500;not null" json:"title"`
	Body      string             `gorm:"type:text;not null" json:"body"`
	Data      datatypes.JSON     `json:"data,omitempty"`
	Status    NotificationStatus `gorm:"size:20;default:'sent';index" json:"status"`
	ReadAt    *time.Time         `json:"read_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TableName specifies the table name
func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return
}

// MarkAsRead marks the notification as read
func (n *Notification) MarkAsRead() {
	now := time.Now()
	n.ReadAt = &now
	n.Status = NotificationStatusRead
}

// NotificationDTO represents the API response format
type NotificationDTO struct {
	ID        uuid.UUID          `json:"id"`
	Type      NotificationType   `json:"type"`
	Title     string             `json:"title"`
	Body      string             `json:"body"`
	Data      *NotificationData  `json:"data,omitempty"`
	Status    NotificationStatus `json:"status"`
	IsRead    bool               `json:"is_read"`
	CreatedAt time.Time          `json:"created_at"`
	ReadAt    *time.Time         `json:"read_at,omitempty"`
}

// ToDTO converts Notification to DTO
func (n *Notification) ToDTO() NotificationDTO {
	dto := NotificationDTO{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Status:    n.Status,
		IsRead:    n.ReadAt != nil,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
	if len(n.Data) > 0 {
		var data NotificationData
		if err := json.Unmarshal(n.Data, &data); err == nil {
			dto.Data = &data
		}
	}
	return dto
}
