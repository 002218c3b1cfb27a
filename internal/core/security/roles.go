// Package security holds the role capability table: the static role → permission
// matrix and the named role groups used by coarse-grained route guards.
//
// Everything in this package is read-only process-wide data and is safe for
// unsynchronized concurrent reads.
package security

import "strings"

// Role is the enumerated role tag carried by every principal.
type Role string

const (
	RoleAdmin         Role = "Admin"
	RoleHead          Role = "Head"
	RoleSubHead       Role = "SubHead"
	RoleManager       Role = "Manager"
	RoleConverter     Role = "Converter"
	RoleDataCollector Role = "DataCollector"
)

// AllRoles lists every role in display order.
var AllRoles = []Role{
	RoleAdmin,
	RoleHead,
	RoleSubHead,
	RoleManager,
	RoleConverter,
	RoleDataCollector,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole resolves a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	for _, known := range AllRoles {
		if strings.EqualFold(string(known), s) {
			return known, true
		}
	}
	return "", false
}

// RoleGroup is a named set of roles.
type RoleGroup struct {
	Name  string
	Roles []Role
}

// Contains reports whether role belongs to the group.
func (g RoleGroup) Contains(role Role) bool {
	for _, r := range g.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Named role groups.
var (
	Managers = RoleGroup{
		Name:  "MANAGERS",
		Roles: []Role{RoleAdmin, RoleHead, RoleSubHead, RoleManager},
	}
	TaskAssigners = RoleGroup{
		Name:  "TASK_ASSIGNERS",
		Roles: []Role{RoleAdmin, RoleHead, RoleSubHead, RoleManager},
	}
	Finalizers = RoleGroup{
		Name:  "FINALIZERS",
		Roles: []Role{RoleAdmin, RoleHead, RoleSubHead, RoleManager, RoleConverter},
	}
	UserManagers = RoleGroup{
		Name:  "USER_MANAGERS",
		Roles: []Role{RoleAdmin, RoleHead},
	}
	CustomFieldManagers = RoleGroup{
		Name:  "CUSTOM_FIELD_MANAGERS",
		Roles: []Role{RoleAdmin, RoleHead},
	}
	TaskWorkers = RoleGroup{
		Name:  "TASK_WORKERS",
		Roles: []Role{RoleConverter, RoleDataCollector},
	}
	ReadOnlyWithComments = RoleGroup{
		Name:  "READ_ONLY_WITH_COMMENTS",
		Roles: []Role{RoleDataCollector},
	}

	// DeletionReviewers receive new follow-up deletion requests.
	DeletionReviewers = Managers
)

// IsInRoleGroup reports whether role belongs to group.
func IsInRoleGroup(role Role, group RoleGroup) bool {
	return group.Contains(role)
}
