package models

import "github.com/google/uuid"

// Principal is an identified actor as seen by request handlers, the
// real-time channel and the policy layer. The zero value is anonymous.
type Principal struct {
	UserID       uuid.UUID    `json:"user_id"`
	Username     string       `json:"username"`
	FarmID       *uuid.UUID   `json:"farm_id,omitempty"`
	Role         Role         `json:"role"`
	Capabilities Capabilities `json:"permissions"`
}

// Anonymous is the principal bound to unauthenticated connections.
var Anonymous = Principal{}

func (p Principal) IsAnonymous() bool {
	return p.UserID == uuid.Nil
}

// HasFarm reports whether the principal belongs to a tenant.
func (p Principal) HasFarm() bool {
	return p.FarmID != nil && *p.FarmID != uuid.Nil
}
