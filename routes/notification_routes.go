package routes

import (
	"github.com/gorilla/mux"
	"p9e.in/farmops/handlers"
	"p9e.in/farmops/pkg/policy"
)

// RegisterNotificationRoutes registers the inbox and the SSE stream
func RegisterNotificationRoutes(api *mux.Router, d Deps, rt *handlers.RealtimeHandler) {
	h := handlers.NewNotificationHandler(d.Notifications)

	api.Handle("/notifications", guard(policy.ActionNotificationRead, h.GetNotifications)).Methods("GET")
	api.Handle("/notifications/unread-count", guard(policy.ActionNotificationRead, h.GetUnreadCount)).Methods("GET")
	api.Handle("/notifications/read-all", guard(policy.ActionNotificationRead, h.MarkAllNotificationsAsRead)).Methods("PATCH")
	api.Handle("/notifications/stream", guard(policy.ActionNotificationRead, rt.Stream)).Methods("GET")
	api.Handle("/notifications/{id}/read", guard(policy.ActionNotificationRead, h.MarkNotificationAsRead)).Methods("PATCH")
}
