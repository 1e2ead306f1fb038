package handlers

import (
	"net/http"

	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/notify"
)

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	svc *notify.NotificationService
}

func NewNotificationHandler(svc *notify.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// GetNotifications retrieves notifications for the current user
// GET /api/v1/notifications?type=&unread=&limit=&offset=
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)

	filter := notify.Filter{
		Type:   models.NotificationType(r.URL.Query().Get("type")),
		Unread: r.URL.Query().Get("unread") == "true",
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	notifications, err := h.svc.List(r.Context(), p.UserID, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	unread, err := h.svc.UnreadCount(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	dtos := make([]models.NotificationDTO, len(notifications))
	for i := range notifications {
		dtos[i] = notifications[i].ToDTO()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": dtos,
		"count":         len(dtos),
		"unread_count":  unread,
		"has_more":      len(dtos) == filter.Limit,
	})
}

// MarkNotificationAsRead PATCH /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkNotificationAsRead(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, err := h.svc.MarkRead(r.Context(), p.UserID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notification": n.ToDTO(),
	})
}

// MarkAllNotificationsAsRead PATCH /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllNotificationsAsRead(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	n, err := h.svc.MarkAllRead(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated": n,
	})
}

// GetUnreadCount GET /api/v1/notifications/unread-count
func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	count, err := h.svc.UnreadCount(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unread_count": count,
	})
}
