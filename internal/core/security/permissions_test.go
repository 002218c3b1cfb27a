package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleTable_IsTotal(t *testing.T) {
	for _, role := range AllRoles {
		_, ok := Lookup(role)
		assert.True(t, ok, "role %s has no permission entry", role)
	}
}

func TestGetPermissions_Deterministic(t *testing.T) {
	for _, role := range AllRoles {
		for _, p := range AllPermissions {
			first := GetPermissions(role).Has(p)
			second := GetPermissions(role).Has(p)
			assert.Equal(t, first, second, "%s/%s", role, p)
		}
	}
}

func TestGetPermissions_UnknownRoleFailsClosed(t *testing.T) {
	rp := GetPermissions(Role("Intern"))

	assert.Equal(t, NoPermissions, rp)
	for _, p := range AllPermissions {
		assert.False(t, rp.Has(p))
	}
}

func TestAdminHasEverything(t *testing.T) {
	rp := GetPermissions(RoleAdmin)
	for _, p := range AllPermissions {
		assert.True(t, rp.Has(p), p.Key())
	}
	assert.False(t, IsEditable(RoleAdmin))
	assert.True(t, IsEditable(RoleManager))
}

func TestDataCollector_CannotEdit(t *testing.T) {
	rp := GetPermissions(RoleDataCollector)

	assert.False(t, rp.CanEdit)
	assert.False(t, rp.CanDelete)
	assert.True(t, rp.CanCreate)
	assert.True(t, rp.CanUpdateOwnTasks)
}

func TestUnknownPermission_NeverGranted(t *testing.T) {
	assert.False(t, GetPermissions(RoleAdmin).Has(Permission(999)))
	assert.Equal(t, "unknown", Permission(999).Key())
}

func TestWith_ReturnsCopy(t *testing.T) {
	base := GetPermissions(RoleConverter)
	changed := base.With(CanDelete, true)

	assert.False(t, base.CanDelete)
	assert.True(t, changed.CanDelete)
}

func TestParsePermission_RoundTrip(t *testing.T) {
	for _, p := range AllPermissions {
		got, ok := ParsePermission(p.Key())
		require.True(t, ok)
		assert.Equal(t, p, got)
	}
	_, ok := ParsePermission("canFly")
	assert.False(t, ok)
}

func TestRoleGroups(t *testing.T) {
	assert.True(t, IsInRoleGroup(RoleManager, Managers))
	assert.False(t, IsInRoleGroup(RoleConverter, Managers))
	assert.True(t, IsInRoleGroup(RoleConverter, TaskWorkers))
	assert.True(t, IsInRoleGroup(RoleDataCollector, TaskWorkers))
	assert.True(t, IsInRoleGroup(RoleHead, UserManagers))
	assert.False(t, IsInRoleGroup(RoleSubHead, CustomFieldManagers))
	assert.True(t, IsInRoleGroup(RoleDataCollector, ReadOnlyWithComments))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("datacollector")
	require.True(t, ok)
	assert.Equal(t, RoleDataCollector, r)

	_, ok = ParseRole("root")
	assert.False(t, ok)
}
