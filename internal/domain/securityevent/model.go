// Package securityevent is the append-only log of authorization decisions.
// Every guard outcome and workflow transition is recorded here with a severity.
package securityevent

import (
	"maps"
	"time"

	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
)

// Severity of a recorded event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// EventType identifies the guard or workflow and its outcome.
type EventType string

// Guard outcomes.
const (
	AuthenticationVerified EventType = "AUTHENTICATION_VERIFIED"
	AuthenticationRequired EventType = "AUTHENTICATION_REQUIRED"

	UserContextValidated EventType = "USER_CONTEXT_VALIDATED"
	UserNotFound         EventType = "USER_NOT_FOUND"
	UserInactive         EventType = "USER_INACTIVE"
	UserLocked           EventType = "USER_LOCKED"
	RoleMismatch         EventType = "ROLE_MISMATCH"
	UserContextError     EventType = "USER_CONTEXT_ERROR"

	PermissionGranted      EventType = "PERMISSION_GRANTED"
	SelfAccessGranted      EventType = "SELF_ACCESS_GRANTED"
	SensitiveAccessGranted EventType = "SENSITIVE_ACCESS_GRANTED"
	PermissionDenied       EventType = "PERMISSION_DENIED"
	PermissionCheckError   EventType = "PERMISSION_CHECK_ERROR"
	RolePermissionsMissing EventType = "ROLE_PERMISSIONS_MISSING"

	RoleAccessGranted EventType = "ROLE_ACCESS_GRANTED"
	RoleAccessDenied  EventType = "ROLE_ACCESS_DENIED"

	WriteAccessGranted         EventType = "WRITE_ACCESS_GRANTED"
	DataCollectorCompanyAccess EventType = "DATA_COLLECTOR_COMPANY_ACCESS"
	TaskWorkerTaskAccess       EventType = "TASK_WORKER_TASK_ACCESS"
	ReadOnlyViolation          EventType = "READ_ONLY_VIOLATION"
	TaskUpdateAdminAccess      EventType = "TASK_UPDATE_ADMIN_ACCESS"
	TaskUpdateOwnAccess        EventType = "TASK_UPDATE_OWN_ACCESS"
	TaskUpdateDenied           EventType = "TASK_UPDATE_DENIED"
	FinalizedEditPrivileged    EventType = "FINALIZED_EDIT_PRIVILEGED"
	FinalizedEditBlocked       EventType = "FINALIZED_EDIT_BLOCKED"
	FinalizedCheckPassed       EventType = "FINALIZED_CHECK_PASSED"
	FinalizedCheckError        EventType = "FINALIZED_CHECK_ERROR"
	ResourceOwnerAccess        EventType = "RESOURCE_OWNER_ACCESS"
	ResourceManagerAccess      EventType = "RESOURCE_MANAGER_ACCESS"
	ResourceNotFound           EventType = "RESOURCE_NOT_FOUND"
	ResourceOwnershipViolation EventType = "RESOURCE_OWNERSHIP_VIOLATION"
	OwnershipCheckError        EventType = "OWNERSHIP_CHECK_ERROR"
	BulkOperationAllowed       EventType = "BULK_OPERATION_ALLOWED"
	BulkDeleteDenied           EventType = "BULK_DELETE_DENIED"
	BulkLimitExceeded          EventType = "BULK_LIMIT_EXCEEDED"
	SuspiciousActivityDetected EventType = "SUSPICIOUS_ACTIVITY_DETECTED"
	RateLimitExceeded          EventType = "RATE_LIMIT_EXCEEDED"
)

// Authentication and account administration.
const (
	LoginSuccess              EventType = "LOGIN_SUCCESS"
	LoginFailed               EventType = "LOGIN_FAILED"
	UserRoleChanged           EventType = "USER_ROLE_CHANGED"
	UserStatusChanged         EventType = "USER_STATUS_CHANGED"
	PermissionOverrideChanged EventType = "PERMISSION_OVERRIDE_CHANGED"
)

// Workflow transitions.
const (
	CompanyFinalized            EventType = "COMPANY_FINALIZED"
	CompanyUnfinalized          EventType = "COMPANY_UNFINALIZED"
	CompanySubmittedForApproval EventType = "COMPANY_SUBMITTED_FOR_APPROVAL"
	BulkFinalizationApproved    EventType = "BULK_FINALIZATION_APPROVED"
	BulkFinalizationRejected    EventType = "BULK_FINALIZATION_REJECTED"
	CompaniesBulkDeleted        EventType = "COMPANIES_BULK_DELETED"

	FollowUpDeletionRequested EventType = "FOLLOWUP_DELETION_REQUESTED"
	FollowUpDeletionApproved  EventType = "FOLLOWUP_DELETION_APPROVED"
	FollowUpDeletionRejected  EventType = "FOLLOWUP_DELETION_REJECTED"
	FollowUpDeletionCancelled EventType = "FOLLOWUP_DELETION_CANCELLED"
	FollowUpDirectDelete      EventType = "FOLLOWUP_DIRECT_DELETE"
)

// severities is the fixed event → severity mapping: privileged access low,
// denials medium, data or role inconsistencies high, attack patterns critical.
var severities = map[EventType]Severity{
	AuthenticationVerified: SeverityLow,
	AuthenticationRequired: SeverityMedium,

	UserContextValidated: SeverityLow,
	UserNotFound:         SeverityHigh,
	UserInactive:         SeverityMedium,
	UserLocked:           SeverityMedium,
	RoleMismatch:         SeverityHigh,
	UserContextError:     SeverityHigh,

	PermissionGranted:      SeverityLow,
	SelfAccessGranted:      SeverityLow,
	SensitiveAccessGranted: SeverityLow,
	PermissionDenied:       SeverityMedium,
	PermissionCheckError:   SeverityHigh,
	RolePermissionsMissing: SeverityHigh,

	RoleAccessGranted: SeverityLow,
	RoleAccessDenied:  SeverityMedium,

	WriteAccessGranted:         SeverityLow,
	DataCollectorCompanyAccess: SeverityLow,
	TaskWorkerTaskAccess:       SeverityLow,
	ReadOnlyViolation:          SeverityMedium,
	TaskUpdateAdminAccess:      SeverityLow,
	TaskUpdateOwnAccess:        SeverityLow,
	TaskUpdateDenied:           SeverityMedium,
	FinalizedEditPrivileged:    SeverityLow,
	FinalizedEditBlocked:       SeverityMedium,
	FinalizedCheckPassed:       SeverityLow,
	FinalizedCheckError:        SeverityHigh,
	ResourceOwnerAccess:        SeverityLow,
	ResourceManagerAccess:      SeverityLow,
	ResourceNotFound:           SeverityMedium,
	ResourceOwnershipViolation: SeverityMedium,
	OwnershipCheckError:        SeverityHigh,
	BulkOperationAllowed:       SeverityLow,
	BulkDeleteDenied:           SeverityMedium,
	BulkLimitExceeded:          SeverityMedium,
	SuspiciousActivityDetected: SeverityCritical,
	RateLimitExceeded:          SeverityMedium,

	LoginSuccess:              SeverityLow,
	LoginFailed:               SeverityMedium,
	UserRoleChanged:           SeverityHigh,
	UserStatusChanged:         SeverityHigh,
	PermissionOverrideChanged: SeverityHigh,

	CompanyFinalized:            SeverityLow,
	CompanyUnfinalized:          SeverityLow,
	CompanySubmittedForApproval: SeverityLow,
	BulkFinalizationApproved:    SeverityLow,
	BulkFinalizationRejected:    SeverityLow,
	CompaniesBulkDeleted:        SeverityMedium,

	FollowUpDeletionRequested: SeverityLow,
	FollowUpDeletionApproved:  SeverityLow,
	FollowUpDeletionRejected:  SeverityLow,
	FollowUpDeletionCancelled: SeverityLow,
	FollowUpDirectDelete:      SeverityMedium,
}

// SeverityOf returns the fixed severity for t. Unmapped types are medium.
func SeverityOf(t EventType) Severity {
	if s, ok := severities[t]; ok {
		return s
	}
	return SeverityMedium
}

// Event is one persisted security_events row.
type Event struct {
	ID        id.ID          `db:"id" json:"id"`
	EventType EventType      `db:"event_type" json:"event_type"`
	UserID    *id.ID         `db:"user_id" json:"user_id,omitempty"`
	IPAddress string         `db:"ip_address" json:"ip_address"`
	UserAgent string         `db:"user_agent" json:"user_agent"`
	Details   map[string]any `db:"-" json:"details"`
	Severity  Severity       `db:"severity" json:"severity"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// NewEvent builds an event, merging request metadata and a timestamp into details.
// The caller's details map is not modified.
func NewEvent(
	eventType EventType,
	userID *id.ID,
	rc *appctx.RequestContext,
	severity Severity,
	details map[string]any,
	now time.Time,
) *Event {
	merged := make(map[string]any, len(details)+3)
	maps.Copy(merged, details)

	ev := &Event{
		ID:        id.New(),
		EventType: eventType,
		UserID:    userID,
		Severity:  severity,
		CreatedAt: now.UTC(),
	}
	if !severity.IsValid() {
		ev.Severity = SeverityOf(eventType)
	}

	if rc != nil {
		ev.IPAddress = rc.IPAddress
		ev.UserAgent = rc.UserAgent
		merged["url"] = rc.OriginalURL
		merged["method"] = rc.Method
	}
	merged["timestamp"] = ev.CreatedAt.Format(time.RFC3339Nano)
	ev.Details = merged

	return ev
}

// ListFilter narrows the admin event query.
type ListFilter struct {
	EventType EventType
	UserID    *id.ID
	Severity  Severity
	Since     *time.Time
	Limit     int
	Offset    int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Normalize clamps paging values.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
