package access

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/auth"
	"crmflow/internal/domain/company"
	"crmflow/internal/domain/securityevent"
)

func TestRequireAuthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.gate.RequireAuthenticated(ctx, &appctx.RequestContext{Method: http.MethodGet})
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
	assert.Equal(t, securityevent.AuthenticationRequired, f.lastType(t))

	require.NoError(t, f.gate.RequireAuthenticated(ctx, request(security.RoleManager, http.MethodGet, "/")))
	assert.Equal(t, securityevent.AuthenticationVerified, f.lastType(t))
}

func TestValidateUserContext(t *testing.T) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name      string
		mutate    func(u *auth.User)
		tokenRole security.Role
		wantKind  apperror.Kind
		wantEvent securityevent.EventType
	}{
		{"valid", func(*auth.User) {}, security.RoleManager, -1, securityevent.UserContextValidated},
		{"inactive", func(u *auth.User) { u.IsActive = false }, security.RoleManager, apperror.KindAuthentication, securityevent.UserInactive},
		{"locked", func(u *auth.User) { u.LockedUntil = &future }, security.RoleManager, apperror.KindAuthentication, securityevent.UserLocked},
		{"demoted", func(u *auth.User) { u.Role = security.RoleConverter }, security.RoleManager, apperror.KindAuthentication, securityevent.RoleMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rc := request(tt.tokenRole, http.MethodGet, "/api/v1/companies")
			u := auth.NewUser("Stored@Example.com", "x", security.RoleManager)
			u.ID = rc.Principal.ID
			tt.mutate(u)
			f.users.users[u.ID] = u

			err := f.gate.ValidateUserContext(ctx, rc)
			if tt.wantKind < 0 {
				require.NoError(t, err)
				assert.Equal(t, "stored@example.com", rc.Principal.Email)
			} else {
				assert.Equal(t, tt.wantKind, apperror.KindOf(err))
			}
			assert.Equal(t, tt.wantEvent, f.lastType(t))
		})
	}
}

func TestValidateUserContext_RoleMismatchDetails(t *testing.T) {
	f := newFixture(t)
	rc := request(security.RoleHead, http.MethodGet, "/")
	u := auth.NewUser("a@example.com", "x", security.RoleDataCollector)
	u.ID = rc.Principal.ID
	f.users.users[u.ID] = u

	require.Error(t, f.gate.ValidateUserContext(context.Background(), rc))
	ev, _ := f.events.Last()
	assert.Equal(t, securityevent.SeverityHigh, ev.Severity)
	assert.Equal(t, "Head", ev.Details["token_role"])
	assert.Equal(t, "DataCollector", ev.Details["stored_role"])
	// the stale principal is not upgraded
	assert.Equal(t, security.RoleHead, rc.Principal.Role)
}

func TestValidateUserContext_NotFoundAndStorageError(t *testing.T) {
	f := newFixture(t)
	rc := request(security.RoleManager, http.MethodGet, "/")

	err := f.gate.ValidateUserContext(context.Background(), rc)
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
	assert.Equal(t, securityevent.UserNotFound, f.lastType(t))

	f.users.err = errStorage
	err = f.gate.ValidateUserContext(context.Background(), rc)
	assert.Equal(t, apperror.CodeInternal, apperror.CodeOf(err))
	assert.Equal(t, securityevent.UserContextError, f.lastType(t))
}

func TestRequirePermission(t *testing.T) {
	ctx := context.Background()

	t.Run("granted", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.gate.RequirePermission(ctx, request(security.RoleManager, http.MethodGet, "/"), security.CanEdit, PermissionOptions{}))
		assert.Equal(t, securityevent.PermissionGranted, f.lastType(t))
	})

	t.Run("sensitive grant", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.gate.RequirePermission(ctx, request(security.RoleAdmin, http.MethodGet, "/"), security.CanManageUsers, PermissionOptions{LogAccess: true}))
		assert.Equal(t, securityevent.SensitiveAccessGranted, f.lastType(t))
	})

	t.Run("denied echoes permission and role", func(t *testing.T) {
		f := newFixture(t)
		err := f.gate.RequirePermission(ctx, request(security.RoleConverter, http.MethodGet, "/"), security.CanManageUsers, PermissionOptions{})
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeForbidden, appErr.Code)
		assert.Equal(t, "canManageUsers", appErr.Details["required_permission"])
		assert.Equal(t, "Converter", appErr.Details["user_role"])

		ev, _ := f.events.Last()
		assert.Equal(t, securityevent.PermissionDenied, ev.EventType)
		assert.Equal(t, securityevent.SeverityMedium, ev.Severity)
	})

	t.Run("self access", func(t *testing.T) {
		f := newFixture(t)
		rc := request(security.RoleConverter, http.MethodPut, "/api/v1/users/me")
		rc.Params["userId"] = rc.Principal.ID.String()
		require.NoError(t, f.gate.RequirePermission(ctx, rc, security.CanManageUsers, PermissionOptions{AllowSelfAccess: true}))
		assert.Equal(t, securityevent.SelfAccessGranted, f.lastType(t))

		rc.Params["userId"] = id.New().String()
		assert.Error(t, f.gate.RequirePermission(ctx, rc, security.CanManageUsers, PermissionOptions{AllowSelfAccess: true}))
	})

	t.Run("override store failure", func(t *testing.T) {
		f := newFixture(t)
		f.overrides.err = errStorage
		err := f.gate.RequirePermission(ctx, request(security.RoleManager, http.MethodGet, "/"), security.CanRead, PermissionOptions{})
		assert.Equal(t, apperror.KindInfrastructure, apperror.KindOf(err))
		assert.Equal(t, securityevent.PermissionCheckError, f.lastType(t))
	})
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.gate.RequireRole(ctx, request(security.RoleAdmin, http.MethodDelete, "/"), security.RoleAdmin))
	assert.Equal(t, securityevent.RoleAccessGranted, f.lastType(t))

	err := f.gate.RequireRole(ctx, request(security.RoleManager, http.MethodDelete, "/"), security.RoleAdmin, security.RoleHead)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Admin", "Head"}, appErr.Details["required"])
	assert.Equal(t, []string{"Manager"}, appErr.Details["current"])
	assert.Equal(t, securityevent.RoleAccessDenied, f.lastType(t))

	require.NoError(t, f.gate.RequireRoleGroup(ctx, request(security.RoleConverter, http.MethodPost, "/"), security.Finalizers))
}

func TestEnforceReadOnly(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		role      security.Role
		method    string
		path      string
		allowed   bool
		wantEvent securityevent.EventType
	}{
		{"data collector edits company", security.RoleDataCollector, http.MethodPut, "/companies/abc", true, securityevent.DataCollectorCompanyAccess},
		{"data collector edits company under api prefix", security.RoleDataCollector, http.MethodPut, "/api/v1/companies/abc", true, securityevent.DataCollectorCompanyAccess},
		{"data collector edits user", security.RoleDataCollector, http.MethodPut, "/api/v1/users/abc", false, securityevent.ReadOnlyViolation},
		{"task worker edits task", security.RoleConverter, http.MethodPatch, "/api/v1/tasks/t1", true, securityevent.TaskWorkerTaskAccess},
		{"data collector replaces task", security.RoleDataCollector, http.MethodPut, "/api/v1/tasks/t1/status", true, securityevent.TaskWorkerTaskAccess},
		{"task worker deletes task", security.RoleConverter, http.MethodDelete, "/api/v1/tasks/t1", false, securityevent.ReadOnlyViolation},
		{"task worker creates under task", security.RoleConverter, http.MethodPost, "/api/v1/tasks/t1", true, securityevent.WriteAccessGranted},
		{"task worker on task collection", security.RoleConverter, http.MethodPatch, "/api/v1/tasks", true, securityevent.WriteAccessGranted},
		{"converter deletes company", security.RoleConverter, http.MethodDelete, "/api/v1/companies/abc", false, securityevent.ReadOnlyViolation},
		{"manager deletes company", security.RoleManager, http.MethodDelete, "/api/v1/companies/abc", true, securityevent.WriteAccessGranted},
		{"converter creates", security.RoleConverter, http.MethodPost, "/api/v1/follow-ups", true, securityevent.WriteAccessGranted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.gate.EnforceReadOnly(ctx, request(tt.role, tt.method, tt.path))
			if tt.allowed {
				require.NoError(t, err)
			} else {
				assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
			}
			assert.Equal(t, tt.wantEvent, f.lastType(t))
		})
	}
}

func TestEnforceReadOnly_ReadsPassSilently(t *testing.T) {
	f := newFixture(t)
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		require.NoError(t, f.gate.EnforceReadOnly(context.Background(), request(security.RoleDataCollector, m, "/api/v1/users")))
	}
	assert.Empty(t, f.events.Events())
}

func TestResourceSegments(t *testing.T) {
	assert.Equal(t, []string{"companies", "x"}, resourceSegments("/api/v1/companies/x"))
	assert.Equal(t, []string{"companies"}, resourceSegments("/companies?page=2"))
	assert.Equal(t, []string{"api"}, resourceSegments("/api"))
	assert.Equal(t, []string{"api", "companies"}, resourceSegments("/api/companies"))
	assert.Empty(t, resourceSegments("/api/v1"))
	assert.Equal(t, []string{"tasks", "t1", "status"}, resourceSegments("//api/v2/tasks/t1/status/"))
	assert.Empty(t, resourceSegments("/"))
}

func TestEnforceTaskUpdatePermission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rc := request(security.RoleManager, http.MethodPatch, "/api/v1/tasks/1/status")
	require.NoError(t, f.gate.EnforceTaskUpdatePermission(ctx, rc))
	assert.False(t, rc.MustBeAssignedUser)
	assert.Equal(t, securityevent.TaskUpdateAdminAccess, f.lastType(t))

	rc = request(security.RoleConverter, http.MethodPatch, "/api/v1/tasks/1/status")
	require.NoError(t, f.gate.EnforceTaskUpdatePermission(ctx, rc))
	assert.True(t, rc.MustBeAssignedUser)
	assert.Equal(t, securityevent.TaskUpdateOwnAccess, f.lastType(t))

	f.overrides.rows = append(f.overrides.rows, Override{Role: security.RoleConverter, Permission: "canUpdateOwnTasks", Allowed: false})
	err := f.gate.EnforceTaskUpdatePermission(ctx, request(security.RoleConverter, http.MethodPatch, "/api/v1/tasks/1/status"))
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	assert.Equal(t, securityevent.TaskUpdateDenied, f.lastType(t))
}

func finalizedCompany() *company.Company {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	by := id.New()
	status := company.FinalizationFinalized
	return &company.Company{
		ID:                 id.New(),
		ConversionStatus:   company.ConversionConfirmed,
		FinalizationStatus: &status,
		FinalizedByID:      &by,
		FinalizedAt:        &at,
	}
}

func TestPreventFinalizedEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked with finalized_at", func(t *testing.T) {
		f := newFixture(t)
		c := finalizedCompany()
		f.companies.rows[c.ID] = c

		rc := request(security.RoleManager, http.MethodPut, "/api/v1/companies/"+c.ID.String())
		rc.Params["id"] = c.ID.String()
		err := f.gate.PreventFinalizedEdit(ctx, rc, "id")

		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeForbidden, appErr.Code)
		assert.Equal(t, c.FinalizedAt, appErr.Details["finalized_at"])
		assert.Equal(t, securityevent.FinalizedEditBlocked, f.lastType(t))
	})

	t.Run("privileged", func(t *testing.T) {
		f := newFixture(t)
		c := finalizedCompany()
		f.companies.rows[c.ID] = c

		rc := request(security.RoleHead, http.MethodDelete, "/api/v1/companies/"+c.ID.String())
		rc.Params["id"] = c.ID.String()
		require.NoError(t, f.gate.PreventFinalizedEdit(ctx, rc, "id"))
		assert.Equal(t, securityevent.FinalizedEditPrivileged, f.lastType(t))
	})

	t.Run("open company and missing company pass", func(t *testing.T) {
		f := newFixture(t)
		open := &company.Company{ID: id.New(), ConversionStatus: company.ConversionContacted}
		f.companies.rows[open.ID] = open

		for _, target := range []string{open.ID.String(), id.New().String(), "not-a-uuid"} {
			rc := request(security.RoleConverter, http.MethodPatch, "/api/v1/companies/"+target)
			rc.Params["id"] = target
			require.NoError(t, f.gate.PreventFinalizedEdit(ctx, rc, "id"))
			assert.Equal(t, securityevent.FinalizedCheckPassed, f.lastType(t))
		}
	})

	t.Run("reads are not checked", func(t *testing.T) {
		f := newFixture(t)
		f.companies.err = errStorage
		require.NoError(t, f.gate.PreventFinalizedEdit(ctx, request(security.RoleConverter, http.MethodGet, "/"), "id"))
		assert.Empty(t, f.events.Events())
	})

	t.Run("storage error", func(t *testing.T) {
		f := newFixture(t)
		f.companies.err = errStorage
		rc := request(security.RoleConverter, http.MethodPut, "/")
		rc.Params["id"] = id.New().String()
		err := f.gate.PreventFinalizedEdit(ctx, rc, "id")
		assert.Equal(t, apperror.KindInfrastructure, apperror.KindOf(err))
		assert.Equal(t, securityevent.FinalizedCheckError, f.lastType(t))
	})
}
