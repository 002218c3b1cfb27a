package access

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/securityevent"
)

func TestEnforceResourceOwnership(t *testing.T) {
	ctx := context.Background()

	t.Run("owner and raiser", func(t *testing.T) {
		f := newFixture(t)
		rc := request(security.RoleConverter, http.MethodGet, "/api/v1/tickets/x")
		owned, raised := id.New(), id.New()
		f.ownership.rows[owned] = Ownership{OwnerID: id.Ptr(rc.Principal.ID)}
		f.ownership.rows[raised] = Ownership{OwnerID: id.Ptr(id.New()), RaisedByID: id.Ptr(rc.Principal.ID)}

		for _, target := range []id.ID{owned, raised} {
			rc.Params["id"] = target.String()
			require.NoError(t, f.gate.EnforceResourceOwnership(ctx, rc, ResourceTicket, OwnershipOptions{}))
			assert.Equal(t, securityevent.ResourceOwnerAccess, f.lastType(t))
		}
		assert.Equal(t, "tickets", f.ownership.targets[0].Table)
		assert.Equal(t, "assigned_to_id", f.ownership.targets[0].OwnerColumn)
	})

	t.Run("missing row is 404, foreign row is 403", func(t *testing.T) {
		f := newFixture(t)
		rc := request(security.RoleConverter, http.MethodGet, "/")
		rc.Params["id"] = id.New().String()

		err := f.gate.EnforceResourceOwnership(ctx, rc, ResourceTask, OwnershipOptions{})
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
		assert.Equal(t, securityevent.ResourceNotFound, f.lastType(t))

		foreign := id.New()
		f.ownership.rows[foreign] = Ownership{OwnerID: id.Ptr(id.New())}
		rc.Params["id"] = foreign.String()
		err = f.gate.EnforceResourceOwnership(ctx, rc, ResourceTask, OwnershipOptions{})
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeForbidden, appErr.Code)
		assert.Equal(t, "task", appErr.Details["resource_type"])
		assert.Equal(t, securityevent.ResourceOwnershipViolation, f.lastType(t))
	})

	t.Run("managers only when allowed", func(t *testing.T) {
		f := newFixture(t)
		foreign := id.New()
		f.ownership.rows[foreign] = Ownership{OwnerID: id.Ptr(id.New())}
		rc := request(security.RoleSubHead, http.MethodGet, "/")
		rc.Params["id"] = foreign.String()

		assert.Error(t, f.gate.EnforceResourceOwnership(ctx, rc, ResourceTask, OwnershipOptions{}))
		require.NoError(t, f.gate.EnforceResourceOwnership(ctx, rc, ResourceTask, OwnershipOptions{AllowManagers: true}))
		assert.Equal(t, securityevent.ResourceManagerAccess, f.lastType(t))
	})

	t.Run("canUpdateAllTasks counts as manager", func(t *testing.T) {
		f := newFixture(t)
		f.overrides.rows = append(f.overrides.rows, Override{Role: security.RoleConverter, Permission: "canUpdateAllTasks", Allowed: true})
		foreign := id.New()
		f.ownership.rows[foreign] = Ownership{OwnerID: id.Ptr(id.New())}
		rc := request(security.RoleConverter, http.MethodGet, "/")
		rc.Params["id"] = foreign.String()

		require.NoError(t, f.gate.EnforceResourceOwnership(ctx, rc, ResourceTask, OwnershipOptions{AllowManagers: true}))
	})

	t.Run("company column and custom param", func(t *testing.T) {
		f := newFixture(t)
		rc := request(security.RoleConverter, http.MethodGet, "/")
		target := id.New()
		f.ownership.rows[target] = Ownership{OwnerID: id.Ptr(rc.Principal.ID)}
		rc.Params["companyId"] = target.String()

		require.NoError(t, f.gate.EnforceResourceOwnership(ctx, rc, ResourceCompany,
			OwnershipOptions{AssignedToField: "assigned_converter_id", Param: "companyId"}))
		assert.Equal(t, OwnershipTarget{Table: "companies", OwnerColumn: "assigned_converter_id"}, f.ownership.targets[0])
	})

	t.Run("column outside whitelist", func(t *testing.T) {
		f := newFixture(t)
		rc := request(security.RoleConverter, http.MethodGet, "/")
		rc.Params["id"] = id.New().String()

		err := f.gate.EnforceResourceOwnership(ctx, rc, ResourceTask, OwnershipOptions{AssignedToField: "id; drop table tasks"})
		assert.Equal(t, apperror.KindInfrastructure, apperror.KindOf(err))
		assert.Equal(t, securityevent.OwnershipCheckError, f.lastType(t))
		assert.Empty(t, f.ownership.targets)
	})
}

func TestResolveOwnership_Defaults(t *testing.T) {
	target, err := ResolveOwnership(ResourceCompany, "")
	require.NoError(t, err)
	assert.Equal(t, "assigned_data_collector_id", target.OwnerColumn)
	assert.Empty(t, target.RaiserColumn)

	target, err = ResolveOwnership(ResourceTask, "")
	require.NoError(t, err)
	assert.Equal(t, "raised_by_id", target.RaiserColumn)

	_, err = ResolveOwnership("contact", "")
	assert.Error(t, err)
}

func TestEnforceBulkOperationLimits_Length(t *testing.T) {
	const maxItems = 5
	for n := 0; n <= maxItems+3; n++ {
		t.Run(fmt.Sprintf("%d ids", n), func(t *testing.T) {
			f := newFixture(t)
			rc := request(security.RoleAdmin, http.MethodDelete, "/api/v1/companies/bulk")
			for i := 0; i < n; i++ {
				rc.BulkIDs = append(rc.BulkIDs, id.New().String())
			}

			err := f.gate.EnforceBulkOperationLimits(context.Background(), rc, maxItems)
			if n <= maxItems {
				require.NoError(t, err)
				assert.Equal(t, securityevent.BulkOperationAllowed, f.lastType(t))
				return
			}
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
			assert.Equal(t, n, appErr.Details["requested"])
			assert.Equal(t, maxItems, appErr.Details["maximum"])
		})
	}
}

func TestEnforceBulkOperationLimits_DeleteNeedsPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rc := request(security.RoleManager, http.MethodDelete, "/api/v1/companies/bulk")
	rc.BulkIDs = []string{id.New().String()}
	err := f.gate.EnforceBulkOperationLimits(ctx, rc, 0)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	assert.Equal(t, securityevent.BulkDeleteDenied, f.lastType(t))

	// non-delete bulk operations only check the length
	rc.Method = http.MethodPost
	require.NoError(t, f.gate.EnforceBulkOperationLimits(ctx, rc, 0))
}

func TestPermissionSource(t *testing.T) {
	ctx := context.Background()
	events := securityevent.NewCapture()
	store := &memOverrides{}
	src := NewPermissionSource(store, events)
	actor := id.New()

	rp, err := src.Permissions(ctx, security.RoleConverter)
	require.NoError(t, err)
	assert.False(t, rp.CanDelete)

	require.NoError(t, src.SetOverride(ctx, actor, security.RoleConverter, security.CanDelete, true))
	rp, err = src.Permissions(ctx, security.RoleConverter)
	require.NoError(t, err)
	assert.True(t, rp.CanDelete, "overrides are read on every decision")
	assert.Equal(t, securityevent.PermissionOverrideChanged, events.Types()[0])

	require.NoError(t, src.ClearOverride(ctx, actor, security.RoleConverter, security.CanDelete))
	rp, _ = src.Permissions(ctx, security.RoleConverter)
	assert.False(t, rp.CanDelete)

	err = src.SetOverride(ctx, actor, security.RoleAdmin, security.CanDelete, false)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))

	err = src.SetOverride(ctx, actor, "Intern", security.CanDelete, true)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestPermissionSource_AdminIgnoresStoredRows(t *testing.T) {
	store := &memOverrides{rows: []Override{{Role: security.RoleAdmin, Permission: "canDelete", Allowed: false}}}
	src := NewPermissionSource(store, securityevent.NewCapture())

	rp, err := src.Permissions(context.Background(), security.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, rp.CanDelete)
}

func TestPermissionSource_MissingRoleFailsClosed(t *testing.T) {
	events := securityevent.NewCapture()
	src := NewPermissionSource(nil, events)

	rp, err := src.Permissions(context.Background(), "Intern")
	require.NoError(t, err)
	assert.Equal(t, security.NoPermissions, rp)

	ev, ok := events.Last()
	require.True(t, ok)
	assert.Equal(t, securityevent.RolePermissionsMissing, ev.EventType)
	assert.Equal(t, securityevent.SeverityHigh, ev.Severity)
}

func TestPermissionSource_Matrix(t *testing.T) {
	src := NewPermissionSource(&memOverrides{}, securityevent.NewCapture())
	m, err := src.Matrix(context.Background())
	require.NoError(t, err)
	assert.Len(t, m, len(security.AllRoles))
	assert.True(t, m[security.RoleConverter].CanFinalize)
	assert.False(t, m[security.RoleDataCollector].CanEdit)
}

func TestSuspiciousActivity_FlagsOncePerWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := request(security.RoleDataCollector, http.MethodGet, "/")

	for i := 0; i < 5; i++ {
		_ = f.gate.RequirePermission(ctx, rc, security.CanManageUsers, PermissionOptions{})
	}

	var flagged int
	for _, ev := range f.events.Events() {
		if ev.EventType == securityevent.SuspiciousActivityDetected {
			flagged++
			assert.Equal(t, securityevent.SeverityCritical, ev.Severity)
			assert.Equal(t, int64(3), ev.Details["denials"])
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestSuspiciousActivity_CacheFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.counters.err = errStorage
	rc := request(security.RoleDataCollector, http.MethodGet, "/")

	err := f.gate.RequirePermission(context.Background(), rc, security.CanManageUsers, PermissionOptions{})
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	counters := newCounterCache()
	events := securityevent.NewCapture()
	limiter := NewRateLimiter(counters, events, time.Minute, 2)
	rc := request(security.RoleConverter, http.MethodGet, "/")

	require.NoError(t, limiter.Allow(ctx, rc))
	require.NoError(t, limiter.Allow(ctx, rc))

	for i := 0; i < 3; i++ {
		err := limiter.Allow(ctx, rc)
		assert.Equal(t, apperror.KindRateLimited, apperror.KindOf(err))
	}
	assert.Equal(t, []securityevent.EventType{securityevent.RateLimitExceeded}, events.Types())

	// a different caller has its own counter
	require.NoError(t, limiter.Allow(ctx, request(security.RoleConverter, http.MethodGet, "/")))

	counters.err = errStorage
	assert.NoError(t, limiter.Allow(ctx, rc), "limiter fails open")
}

func TestSubjectKey(t *testing.T) {
	rc := request(security.RoleManager, http.MethodGet, "/")
	assert.Equal(t, "user:"+rc.Principal.ID.String(), subjectKey(rc))

	rc.Principal = nil
	assert.Equal(t, "ip:10.0.0.1", subjectKey(rc))
	assert.Equal(t, "anonymous", subjectKey(nil))
}
