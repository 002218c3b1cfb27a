package security

// Permission is a closed enumeration of capability flags. Unknown values never
// grant anything.
type Permission int

const (
	CanRead Permission = iota + 1
	CanReadFinalized
	CanCreate
	CanEdit
	CanDelete
	CanBulkDelete
	CanAssignTasks
	CanUpdateOwnTasks
	CanUpdateAllTasks
	CanFinalize
	CanEditFinalized
	CanManageUsers
	CanComment
	CanManageCustomFields
	CanExportFinalized
)

// AllPermissions lists every permission in table order.
var AllPermissions = []Permission{
	CanRead,
	CanReadFinalized,
	CanCreate,
	CanEdit,
	CanDelete,
	CanBulkDelete,
	CanAssignTasks,
	CanUpdateOwnTasks,
	CanUpdateAllTasks,
	CanFinalize,
	CanEditFinalized,
	CanManageUsers,
	CanComment,
	CanManageCustomFields,
	CanExportFinalized,
}

var permissionKeys = map[Permission]string{
	CanRead:               "canRead",
	CanReadFinalized:      "canReadFinalized",
	CanCreate:             "canCreate",
	CanEdit:               "canEdit",
	CanDelete:             "canDelete",
	CanBulkDelete:         "canBulkDelete",
	CanAssignTasks:        "canAssignTasks",
	CanUpdateOwnTasks:     "canUpdateOwnTasks",
	CanUpdateAllTasks:     "canUpdateAllTasks",
	CanFinalize:           "canFinalize",
	CanEditFinalized:      "canEditFinalized",
	CanManageUsers:        "canManageUsers",
	CanComment:            "canComment",
	CanManageCustomFields: "canManageCustomFields",
	CanExportFinalized:    "canExportFinalized",
}

// Key returns the wire name of the permission (e.g. "canEdit").
func (p Permission) Key() string {
	if k, ok := permissionKeys[p]; ok {
		return k
	}
	return "unknown"
}

func (p Permission) String() string { return p.Key() }

// ParsePermission resolves a wire name back to a Permission.
func ParsePermission(key string) (Permission, bool) {
	for p, k := range permissionKeys {
		if k == key {
			return p, true
		}
	}
	return 0, false
}

// RolePermissions is the fixed capability record of one role.
type RolePermissions struct {
	CanRead               bool `json:"canRead" yaml:"canRead"`
	CanReadFinalized      bool `json:"canReadFinalized" yaml:"canReadFinalized"`
	CanCreate             bool `json:"canCreate" yaml:"canCreate"`
	CanEdit               bool `json:"canEdit" yaml:"canEdit"`
	CanDelete             bool `json:"canDelete" yaml:"canDelete"`
	CanBulkDelete         bool `json:"canBulkDelete" yaml:"canBulkDelete"`
	CanAssignTasks        bool `json:"canAssignTasks" yaml:"canAssignTasks"`
	CanUpdateOwnTasks     bool `json:"canUpdateOwnTasks" yaml:"canUpdateOwnTasks"`
	CanUpdateAllTasks     bool `json:"canUpdateAllTasks" yaml:"canUpdateAllTasks"`
	CanFinalize           bool `json:"canFinalize" yaml:"canFinalize"`
	CanEditFinalized      bool `json:"canEditFinalized" yaml:"canEditFinalized"`
	CanManageUsers        bool `json:"canManageUsers" yaml:"canManageUsers"`
	CanComment            bool `json:"canComment" yaml:"canComment"`
	CanManageCustomFields bool `json:"canManageCustomFields" yaml:"canManageCustomFields"`
	CanExportFinalized    bool `json:"canExportFinalized" yaml:"canExportFinalized"`
}

// Has reports whether the record grants p.
func (rp RolePermissions) Has(p Permission) bool {
	if f := rp.field(p); f != nil {
		return *f
	}
	return false
}

// With returns a copy of rp with p set to allowed.
func (rp RolePermissions) With(p Permission, allowed bool) RolePermissions {
	if f := rp.field(p); f != nil {
		*f = allowed
	}
	return rp
}

func (rp *RolePermissions) field(p Permission) *bool {
	switch p {
	case CanRead:
		return &rp.CanRead
	case CanReadFinalized:
		return &rp.CanReadFinalized
	case CanCreate:
		return &rp.CanCreate
	case CanEdit:
		return &rp.CanEdit
	case CanDelete:
		return &rp.CanDelete
	case CanBulkDelete:
		return &rp.CanBulkDelete
	case CanAssignTasks:
		return &rp.CanAssignTasks
	case CanUpdateOwnTasks:
		return &rp.CanUpdateOwnTasks
	case CanUpdateAllTasks:
		return &rp.CanUpdateAllTasks
	case CanFinalize:
		return &rp.CanFinalize
	case CanEditFinalized:
		return &rp.CanEditFinalized
	case CanManageUsers:
		return &rp.CanManageUsers
	case CanComment:
		return &rp.CanComment
	case CanManageCustomFields:
		return &rp.CanManageCustomFields
	case CanExportFinalized:
		return &rp.CanExportFinalized
	}
	return nil
}

// Granted lists the keys of every permission the record grants.
func (rp RolePermissions) Granted() []string {
	var out []string
	for _, p := range AllPermissions {
		if rp.Has(p) {
			out = append(out, p.Key())
		}
	}
	return out
}

// NoPermissions is the fail-closed record.
var NoPermissions = RolePermissions{}

func allPermissions() RolePermissions {
	var rp RolePermissions
	for _, p := range AllPermissions {
		rp = rp.With(p, true)
	}
	return rp
}

// rolePermissions is the authoritative default table. Admin entries are
// load-bearing constants and are never overridden at runtime.
var rolePermissions = map[Role]RolePermissions{
	RoleAdmin: allPermissions(),
	RoleHead:  allPermissions(),
	RoleSubHead: {
		CanRead:            true,
		CanReadFinalized:   true,
		CanCreate:          true,
		CanEdit:            true,
		CanDelete:          true,
		CanAssignTasks:     true,
		CanUpdateOwnTasks:  true,
		CanUpdateAllTasks:  true,
		CanFinalize:        true,
		CanComment:         true,
		CanExportFinalized: true,
	},
	RoleManager: {
		CanRead:            true,
		CanReadFinalized:   true,
		CanCreate:          true,
		CanEdit:            true,
		CanDelete:          true,
		CanAssignTasks:     true,
		CanUpdateOwnTasks:  true,
		CanUpdateAllTasks:  true,
		CanFinalize:        true,
		CanComment:         true,
		CanExportFinalized: true,
	},
	RoleConverter: {
		CanRead:           true,
		CanCreate:         true,
		CanEdit:           true,
		CanUpdateOwnTasks: true,
		CanFinalize:       true,
		CanComment:        true,
	},
	RoleDataCollector: {
		CanRead:           true,
		CanCreate:         true,
		CanUpdateOwnTasks: true,
		CanComment:        true,
	},
}

// Lookup returns the default permissions for role and whether an entry exists.
func Lookup(role Role) (RolePermissions, bool) {
	rp, ok := rolePermissions[role]
	if !ok {
		return NoPermissions, false
	}
	return rp, true
}

// GetPermissions returns the default permissions for role, failing closed for
// roles without an entry.
func GetPermissions(role Role) RolePermissions {
	rp, _ := Lookup(role)
	return rp
}

// HasPermission is a convenience over GetPermissions.
func HasPermission(role Role, p Permission) bool {
	return GetPermissions(role).Has(p)
}

// IsEditable reports whether role's permissions may be changed at runtime.
func IsEditable(role Role) bool {
	return role != RoleAdmin && role.IsValid()
}
