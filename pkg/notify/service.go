// Package notify resolves notification recipients, keeps their inbox and
// hands live delivery to the real-time fan-out.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/metrics"
	"p9e.in/farmops/pkg/realtime"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Deliverer pushes an event to the live connections of principals.
type Deliverer interface {
	Deliver(ctx context.Context, principalIDs []uuid.UUID, ev realtime.Event)
}

// NotificationService sends notifications to farm members.
type NotificationService struct {
	db       *gorm.DB
	delivery Deliverer
	log      *zap.Logger
}

func NewNotificationService(db *gorm.DB, delivery Deliverer, log *zap.Logger) *NotificationService {
	return &NotificationService{db: db, delivery: delivery, log: log.Named("notify")}
}

// Filter narrows an inbox listing.
type Filter struct {
	Type   models.NotificationType
	Unread bool
	Limit  int
	Offset int
}

// NotifyFarmRoles sends msg to every active member of the farm holding one
// of roles. Inbox persistence failures are logged; live delivery is
// attempted regardless. It returns the number of recipients.
func (s *NotificationService) NotifyFarmRoles(ctx context.Context, farmID uuid.UUID, roles []models.Role, msg models.NotificationMessage) (int, error) {
	recipients, err := s.resolveRecipients(ctx, farmID, roles)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	if err := s.store(ctx, farmID, recipients, msg); err != nil {
		s.log.Warn("failed to store inbox notifications",
			zap.String("farm", farmID.String()), zap.Error(err))
	}

	s.delivery.Deliver(ctx, recipients, realtime.NotificationEvent(msg))
	metrics.NotificationsPublished.WithLabelValues(kindOf(msg)).Add(float64(len(recipients)))
	return len(recipients), nil
}

func (s *NotificationService) resolveRecipients(ctx context.Context, farmID uuid.UUID, roles []models.Role) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("farm_id = ? AND role IN ? AND is_active = ?", farmID, roles, true).
		Order("username").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	return ids, nil
}

func (s *NotificationService) store(ctx context.Context, farmID uuid.UUID, recipients []uuid.UUID, msg models.NotificationMessage) error {
	var data datatypes.JSON
	if msg.Data != nil {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return err
		}
		data = raw
	}

	title := msg.Title
	if title == "" {
		title = "Notification"
	}
	rows := make([]models.Notification, 0, len(recipients))
	for _, id := range recipients {
		rows = append(rows, models.Notification{
			UserID: id,
			FarmID: &farmID,
			Type:   models.NotificationType(kindOf(msg)),
			Title:  title,
			Body:   msg.Message,
			Data:   data,
			Status: models.NotificationStatusSent,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func kindOf(msg models.NotificationMessage) string {
	if msg.Data != nil && msg.Data.Type != "" {
		return string(msg.Data.Type)
	}
	return "general"
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, f Filter) ([]models.Notification, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Unread {
		query = query.Where("read_at IS NULL")
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query = query.Limit(limit)
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	notifications := []models.Notification{}
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount counts the user's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	if n.ReadAt != nil {
		return &n, nil
	}

	n.MarkAsRead()
	if err := s.db.WithContext(ctx).Model(&n).
		Updates(map[string]interface{}{"read_at": n.ReadAt, "status": n.Status}).Error; err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return &n, nil
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Updates(map[string]interface{}{"read_at": time.Now(), "status": models.NotificationStatusRead})
	if result.Error != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
