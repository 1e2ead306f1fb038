// Package policy derives capabilities from roles and evaluates every
// authorization decision made by the API and the real-time channel.
package policy

import (
	"p9e.in/farmops/models"
	"p9e.in/farmops/utils"
)

// Action is a "resource:action" permission name.
type Action = string

const (
	ActionReportRead         Action = "report:read"
	ActionReportSubmit       Action = "report:submit"
	ActionReportExport       Action = "report:export"
	ActionReportConfigRead   Action = "report_config:read"
	ActionReportConfigUpdate Action = "report_config:update"

	ActionFlockRead   Action = "flock:read"
	ActionFlockCreate Action = "flock:create"
	ActionFlockUpdate Action = "flock:update"
	ActionFlockDelete Action = "flock:delete"
	ActionLogRead     Action = "log:read"
	ActionLogCreate   Action = "log:create"

	ActionFinanceRead   Action = "finance:read"
	ActionFinanceCreate Action = "finance:create"
	ActionFinanceDelete Action = "finance:delete"

	ActionUserRead   Action = "user:read"
	ActionUserUpdate Action = "user:update"

	ActionNotificationRead Action = "notification:read"
)

// DeriveCapabilities is the single source of the role → capability mapping.
// Whoever writes a user's role calls it and stores the result.
func DeriveCapabilities(role models.Role) models.Capabilities {
	switch role {
	case models.RoleSuperuser:
		return models.Capabilities{
			CanManageFlocks:   true,
			CanManageFinances: true,
			CanManageUsers:    true,
			CanAddLogs:        true,
		}
	case models.RoleManager:
		return models.Capabilities{
			CanManageFlocks:   true,
			CanManageFinances: true,
			CanAddLogs:        true,
		}
	case models.RoleFinancialManager:
		return models.Capabilities{
			CanManageFinances: true,
		}
	case models.RoleStaff:
		return models.Capabilities{
			CanAddLogs: true,
		}
	default:
		return models.Capabilities{}
	}
}

var memberGrants = []string{
	ActionReportRead,
	ActionReportConfigRead,
	ActionUserRead,
	"notification:*",
}

var roleGrants = map[models.Role][]string{
	models.RoleStaff:            {ActionReportSubmit, ActionFlockRead},
	models.RoleManager:          {"report:*", "report_config:*", ActionFlockRead},
	models.RoleFinancialManager: {ActionReportExport},
	models.RoleSuperuser:        {"*"},
}

// Grants lists the permission patterns held by p.
func Grants(p models.Principal) []string {
	if p.IsAnonymous() {
		return nil
	}

	grants := make([]string, 0, 12)
	grants = append(grants, memberGrants...)
	grants = append(grants, roleGrants[p.Role]...)

	caps := p.Capabilities
	if caps.CanManageFlocks {
		grants = append(grants, "flock:*", "log:*")
	}
	if caps.CanAddLogs {
		grants = append(grants, ActionLogCreate, ActionLogRead, ActionFlockRead)
	}
	if caps.CanManageFinances {
		grants = append(grants, "finance:*")
	}
	if caps.CanManageUsers {
		grants = append(grants, "user:*")
	}
	return grants
}

// Authorize decides whether p may perform action. Every action is
// tenant-scoped, so principals without a farm are refused.
func Authorize(p models.Principal, action Action) bool {
	if p.IsAnonymous() || !p.HasFarm() {
		return false
	}
	return utils.MatchesAny(Grants(p), action)
}
