package auth

import "github.com/telagent/gateway/internal/domain"

// RoleResolver derives an application role from directory group ids.
type RoleResolver struct {
	AdminGroupID string
	UserGroupID  string
}

// Resolve maps group membership to a role. Admin membership wins over
// user membership regardless of list order; anything else, including an
// empty list, is unauthorized.
func (r RoleResolver) Resolve(groupIDs []string) domain.Role {
	if len(groupIDs) == 0 {
		return domain.RoleUnauthorized
	}
	member := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		member[id] = true
	}
	if r.AdminGroupID != "" && member[r.AdminGroupID] {
		return domain.RoleAdmin
	}
	if r.UserGroupID != "" && member[r.UserGroupID] {
		return domain.RoleUser
	}
	return domain.RoleUnauthorized
}
