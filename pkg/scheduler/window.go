package scheduler

import (
	"time"

	"gorm.io/datatypes"
	"p9e.in/farmops/models"
)

// Window is the notification window a moment falls into relative to a
// report deadline.
type Window int

const (
	WindowNone Window = iota
	WindowDueSoon
	WindowOverdue
)

const (
	// DueSoonLead is how long before the deadline reminders start.
	DueSoonLead = 60 * time.Minute
	// OverdueAfter and OverdueUntil bound the alert window after the deadline.
	OverdueAfter = 5 * time.Minute
	OverdueUntil = 15 * time.Minute
)

func (w Window) String() string {
	switch w {
	case WindowDueSoon:
		return "due_soon"
	case WindowOverdue:
		return "overdue"
	default:
		return "none"
	}
}

// Kind is the notification kind sent for the window.
func (w Window) Kind() models.ReminderKind {
	if w == WindowOverdue {
		return models.ReminderOverdue
	}
	return models.ReminderDueSoon
}

// Roles are the farm roles notified for the window.
func (w Window) Roles() []models.Role {
	switch w {
	case WindowDueSoon:
		return []models.Role{models.RoleStaff, models.RoleManager, models.RoleSuperuser}
	case WindowOverdue:
		return []models.Role{models.RoleManager, models.RoleSuperuser}
	default:
		return nil
	}
}

// DeadlineOn returns the deadline instant on the calendar day of now in loc.
func DeadlineOn(now time.Time, deadline datatypes.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()

	offset := time.Duration(deadline)
	h := int(offset / time.Hour)
	offset -= time.Duration(h) * time.Hour
	mi := int(offset / time.Minute)
	offset -= time.Duration(mi) * time.Minute
	sec := int(offset / time.Second)
	offset -= time.Duration(sec) * time.Second

	return time.Date(y, m, d, h, mi, sec, int(offset), loc)
}

// Classify places now relative to today's deadline. Both window bounds are
// inclusive, except that the deadline instant itself is in neither window.
func Classify(now time.Time, deadline datatypes.Time, loc *time.Location) (Window, time.Duration) {
	delta := DeadlineOn(now, deadline, loc).Sub(now)
	switch {
	case delta > 0 && delta <= DueSoonLead:
		return WindowDueSoon, delta
	case delta <= -OverdueAfter && delta >= -OverdueUntil:
		return WindowOverdue, delta
	default:
		return WindowNone, delta
	}
}
