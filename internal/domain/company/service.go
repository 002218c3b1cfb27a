package company

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/core/tx"
	"crmflow/internal/domain"
	"crmflow/internal/domain/notification"
	"crmflow/internal/domain/securityevent"
	"crmflow/pkg/logger"
)

var tracer = otel.Tracer("crmflow/company")

const entityType = "company"

// Service runs finalization transitions. Preconditions are checked and the
// write is issued under a row lock inside one transaction, so concurrent
// finalize calls on one company serialize and the loser sees ALREADY_FINALIZED.
type Service struct {
	repo      Repository
	txManager tx.Manager
	notifier  *notification.Dispatcher
	events    securityevent.Recorder
	now       func() time.Time
}

// NewService creates the finalization workflow service.
func NewService(
	repo Repository,
	txManager tx.Manager,
	notifier *notification.Dispatcher,
	events securityevent.Recorder,
) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		notifier:  notifier,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a company.
func (s *Service) Get(ctx context.Context, companyID id.ID) (*Company, error) {
	return s.repo.GetByID(ctx, companyID)
}

// Finalize locks a Confirmed company.
func (s *Service) Finalize(ctx context.Context, companyID, actingUserID id.ID) (*Company, error) {
	ctx, span := tracer.Start(ctx, "company.finalize", trace.WithAttributes(
		attribute.String("company.id", companyID.String()),
	))
	defer span.End()

	c, err := s.mutate(ctx, companyID, func(c *Company) error {
		return c.Finalize(actingUserID, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, securityevent.CompanyFinalized, actingUserID, map[string]any{"company_id": companyID.String()})
	logger.Info(ctx, "company finalized", "company_id", companyID, "finalized_by", actingUserID)
	return c, nil
}

// Unfinalize returns a Finalized company to Open, clearing finalize metadata.
func (s *Service) Unfinalize(ctx context.Context, companyID, actingUserID id.ID) (*Company, error) {
	ctx, span := tracer.Start(ctx, "company.unfinalize", trace.WithAttributes(
		attribute.String("company.id", companyID.String()),
	))
	defer span.End()

	var previousBy *id.ID
	c, err := s.mutate(ctx, companyID, func(c *Company) error {
		previousBy = c.FinalizedByID
		return c.Unfinalize(s.now())
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{"company_id": companyID.String()}
	if previousBy != nil {
		details["previously_finalized_by"] = previousBy.String()
	}
	s.record(ctx, securityevent.CompanyUnfinalized, actingUserID, details)
	logger.Info(ctx, "company unfinalized", "company_id", companyID, "unfinalized_by", actingUserID)
	return c, nil
}

// SubmitForApproval places an Open company into the Pending approval queue.
func (s *Service) SubmitForApproval(ctx context.Context, companyID, actingUserID id.ID) (*Company, error) {
	c, err := s.mutate(ctx, companyID, func(c *Company) error {
		return c.SubmitForApproval(s.now())
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, securityevent.CompanySubmittedForApproval, actingUserID, map[string]any{"company_id": companyID.String()})
	return c, nil
}

// mutate loads the row under lock, applies fn, and persists on success.
func (s *Service) mutate(ctx context.Context, companyID id.ID, fn func(c *Company) error) (*Company, error) {
	var out *Company
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, companyID)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		if err := c.CheckInvariant(); err != nil {
			return err
		}
		if err := s.repo.SaveFinalization(ctx, c); err != nil {
			return fmt.Errorf("save finalization: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateConversionStatus moves the company along the pipeline.
func (s *Service) UpdateConversionStatus(ctx context.Context, companyID id.ID, status ConversionStatus) (*Company, error) {
	if !status.IsValid() {
		return nil, apperror.NewFieldValidation("conversion_status", "unknown conversion status").
			WithDetail("value", string(status))
	}

	var out *Company
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, companyID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := s.repo.UpdateConversionStatus(ctx, companyID, status, now); err != nil {
			return fmt.Errorf("update conversion status: %w", err)
		}
		c.ConversionStatus = status
		c.UpdatedAt = now
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BulkApprove finalizes every id currently Pending and returns how many
// rows changed. Other ids are left untouched.
func (s *Service) BulkApprove(ctx context.Context, ids []id.ID, actingUserID id.ID) (int, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "company.bulk_approve", trace.WithAttributes(
		attribute.Int("company.count", len(ids)),
	))
	defer span.End()

	var affected []Assignees
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		affected, err = s.repo.ApprovePending(ctx, ids, actingUserID, s.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("approve pending companies: %w", err)
	}

	for _, a := range affected {
		s.notifier.SendMany(ctx, a.Recipients(), notification.Notification{
			Message:    fmt.Sprintf("Company %q has been approved and finalized", a.Name),
			Type:       notification.TypeSuccess,
			EntityType: entityType,
			EntityID:   id.Ptr(a.CompanyID),
		})
	}

	s.record(ctx, securityevent.BulkFinalizationApproved, actingUserID, map[string]any{
		"requested": len(ids),
		"updated":   len(affected),
	})
	logger.Info(ctx, "bulk finalization approved", "requested", len(ids), "updated", len(affected))
	return len(affected), nil
}

// BulkReject resets every id to Pending regardless of its current state.
func (s *Service) BulkReject(ctx context.Context, ids []id.ID, actingUserID id.ID) (int, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "company.bulk_reject", trace.WithAttributes(
		attribute.Int("company.count", len(ids)),
	))
	defer span.End()

	var affected []Assignees
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		affected, err = s.repo.ResetToPending(ctx, ids, s.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reset companies to pending: %w", err)
	}

	for _, a := range affected {
		s.notifier.SendMany(ctx, a.Recipients(), notification.Notification{
			Message:    fmt.Sprintf("Finalization of company %q was rejected and returned to pending", a.Name),
			Type:       notification.TypeWarning,
			EntityType: entityType,
			EntityID:   id.Ptr(a.CompanyID),
		})
	}

	s.record(ctx, securityevent.BulkFinalizationRejected, actingUserID, map[string]any{
		"requested": len(ids),
		"updated":   len(affected),
	})
	return len(affected), nil
}

// ApprovalQueue lists Pending companies visible to role. Roles without a
// queue get an empty result.
func (s *Service) ApprovalQueue(
	ctx context.Context,
	role security.Role,
	userID id.ID,
	p domain.Pagination,
) (domain.ListResult[Company], error) {
	p = p.Normalize()

	var scope QueueScope
	switch {
	case role == security.RoleConverter:
		scope.ConverterID = &userID
	case security.Managers.Contains(role):
	default:
		return domain.NewListResult[Company](nil, 0, p), nil
	}

	items, total, err := s.repo.ListPending(ctx, scope, p)
	if err != nil {
		return domain.ListResult[Company]{}, fmt.Errorf("list approval queue: %w", err)
	}
	return domain.NewListResult(items, total, p), nil
}

// BulkDelete removes companies.
func (s *Service) BulkDelete(ctx context.Context, ids []id.ID, actingUserID id.ID) (int, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.repo.DeleteMany(ctx, ids)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete companies: %w", err)
	}

	s.record(ctx, securityevent.CompaniesBulkDeleted, actingUserID, map[string]any{
		"requested": len(ids),
		"deleted":   deleted,
	})
	return int(deleted), nil
}

func (s *Service) record(ctx context.Context, t securityevent.EventType, actor id.ID, details map[string]any) {
	s.events.Record(ctx, t, &actor, appctx.GetRequest(ctx), securityevent.SeverityOf(t), details)
}

// normalizeIDs drops duplicates and rejects an empty batch.
func normalizeIDs(ids []id.ID) ([]id.ID, error) {
	seen := make(map[id.ID]struct{}, len(ids))
	out := make([]id.ID, 0, len(ids))
	for _, v := range ids {
		if id.IsNil(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, apperror.NewFieldValidation("ids", "at least one id is required")
	}
	return out, nil
}
