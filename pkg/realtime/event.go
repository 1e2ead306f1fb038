package realtime

import (
	"encoding/json"

	"p9e.in/farmops/models"
)

// EventNotification is the name of user-facing notification events.
const EventNotification = "notification"

// Event is the frame written to client connections.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// NotificationEvent wraps msg in a "notification" event.
func NotificationEvent(msg models.NotificationMessage) Event {
	data, _ := json.Marshal(msg)
	return Event{Name: EventNotification, Data: data}
}

// Conn is one live client connection. Send must not block; a connection
// that cannot accept more events returns an error.
type Conn interface {
	ID() string
	Send(Event) error
}
