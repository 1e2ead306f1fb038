package utils

import "strings"

// MatchesPermission checks if a granted permission covers the required one.
// Grants may use wildcards:
//
//   - "*" or "*:*" covers everything (superuser)
//   - "flock:*" covers every action on flocks (flock:create, flock:delete, ...)
//   - "*:read" covers read on every resource (report:read, finance:read, ...)
//   - "report:submit" exact match
//
// Permission format is "resource:action".
func MatchesPermission(granted, required string) bool {
	if granted == required {
		return true
	}

	if granted == "*" || granted == "*:*" {
		return true
	}

	grantedParts := strings.Split(granted, ":")
	requiredParts := strings.Split(required, ":")

	// Single-part names only ever match exactly.
	if len(grantedParts) < 2 || len(requiredParts) < 2 {
		return false
	}

	resourceMatch := grantedParts[0] == "*" || grantedParts[0] == requiredParts[0]
	actionMatch := grantedParts[1] == "*" || grantedParts[1] == requiredParts[1]

	return resourceMatch && actionMatch
}

// MatchesAny reports whether any grant covers the required permission.
func MatchesAny(grants []string, required string) bool {
	for _, g := range grants {
		if MatchesPermission(g, required) {
			return true
		}
	}
	return false
}
