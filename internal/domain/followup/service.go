package followup

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

var tracer = otel.Tracer("crmflow/followup")

const (
	entityFollowUp        = "followup"
	entityDeletionRequest = "followup_deletion_request"
)

// Service manages follow-ups and their deletion requests.
type Service struct {
	followUps Repository
	requests  DeletionRequestRepository
	txManager tx.Manager
	notifier  *notification.Dispatcher
	events    securityevent.Recorder
	now       func() time.Time
}

// NewService creates the follow-up service.
func NewService(
	followUps Repository,
	requests DeletionRequestRepository,
	txManager tx.Manager,
	notifier *notification.Dispatcher,
	events securityevent.Recorder,
) *Service {
	return &Service{
		followUps: followUps,
		requests:  requests,
		txManager: txManager,
		notifier:  notifier,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// --- Follow-ups ---

// Create validates and stores a follow-up.
func (s *Service) Create(ctx context.Context, in CreateInput) (*FollowUp, error) {
	now := s.now()
	f := &FollowUp{
		ID:            id.New(),
		CompanyID:     in.CompanyID,
		ContactedDate: in.ContactedDate,
		FollowUpDate:  in.FollowUpDate,
		Notes:         in.Notes,
		ContactedByID: in.ContactedByID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if err := s.followUps.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("create follow-up: %w", err)
	}
	return f, nil
}

// Get returns a follow-up.
func (s *Service) Get(ctx context.Context, followUpID id.ID) (*FollowUp, error) {
	return s.followUps.GetByID(ctx, followUpID)
}

// ListByCompany returns the follow-ups of a company.
func (s *Service) ListByCompany(ctx context.Context, companyID id.ID) ([]FollowUp, error) {
	items, err := s.followUps.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	if items == nil {
		items = []FollowUp{}
	}
	return items, nil
}

// Update merges patch onto the stored row and re-validates the result, so a
// patch touching one date is checked against the stored other date.
func (s *Service) Update(ctx context.Context, followUpID id.ID, patch Patch) (*FollowUp, error) {
	if patch.IsEmpty() {
		return nil, apperror.NewValidation("no fields to update")
	}

	var out *FollowUp
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		f, err := s.followUps.GetForUpdate(ctx, followUpID)
		if err != nil {
			return err
		}
		f.Apply(patch)
		if err := f.Validate(); err != nil {
			return err
		}
		f.UpdatedAt = s.now()
		if err := s.followUps.Update(ctx, f); err != nil {
			return fmt.Errorf("update follow-up: %w", err)
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDirect removes a follow-up without a deletion request. Route
// guards restrict it to roles with elevated delete rights.
func (s *Service) DeleteDirect(ctx context.Context, followUpID, actingUserID id.ID) error {
	deleted, err := s.followUps.Delete(ctx, followUpID)
	if err != nil {
		return fmt.Errorf("delete follow-up: %w", err)
	}
	if !deleted {
		return apperror.NewNotFound(entityFollowUp, followUpID)
	}

	s.record(ctx, securityevent.FollowUpDirectDelete, actingUserID, map[string]any{
		"followup_id": followUpID.String(),
	})
	return nil
}

// --- Deletion requests ---

// ProposeDeletion opens a pending deletion request and notifies reviewers.
func (s *Service) ProposeDeletion(ctx context.Context, followUpID, requesterID id.ID, reason *string) (*DeletionRequest, error) {
	ctx, span := tracer.Start(ctx, "followup.propose_deletion", trace.WithAttributes(
		attribute.String("followup.id", followUpID.String()),
	))
	defer span.End()

	var req *DeletionRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		f, err := s.followUps.GetByID(ctx, followUpID)
		if err != nil {
			return err
		}

		existing, err := s.requests.FindPending(ctx, followUpID)
		if err != nil {
			return fmt.Errorf("find pending deletion request: %w", err)
		}
		if existing != nil {
			return alreadyPending(existing.ID)
		}

		req = &DeletionRequest{
			ID:            id.New(),
			FollowUpID:    followUpID,
			CompanyID:     f.CompanyID,
			RequestedByID: requesterID,
			Reason:        trimmed(reason),
			Status:        DeletionPending,
			CreatedAt:     s.now(),
		}
		return s.requests.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendToRoles(ctx, security.DeletionReviewers.Roles, notification.Notification{
		Message:    "A follow-up deletion request is waiting for review",
		Type:       notification.TypeInfo,
		EntityType: entityDeletionRequest,
		EntityID:   id.Ptr(req.ID),
	})

	s.record(ctx, securityevent.FollowUpDeletionRequested, requesterID, map[string]any{
		"request_id":  req.ID.String(),
		"followup_id": followUpID.String(),
	})
	logger.Info(ctx, "follow-up deletion requested", "request_id", req.ID, "followup_id", followUpID)
	return req, nil
}

func alreadyPending(requestID id.ID) *apperror.AppError {
	return apperror.NewStateConflict(apperror.CodeDeletionAlreadyPending,
		"a deletion request for this follow-up is already pending").
		WithDetail("request_id", requestID.String())
}

// Review approves or rejects a pending request. Approval deletes the
// follow-up in the same transaction; a follow-up already gone is fine.
func (s *Service) Review(
	ctx context.Context,
	requestID, reviewerID id.ID,
	action ReviewAction,
	rejectionReason *string,
) (*DeletionRequest, error) {
	ctx, span := tracer.Start(ctx, "followup.review_deletion", trace.WithAttributes(
		attribute.String("request.id", requestID.String()),
		attribute.String("review.action", string(action)),
	))
	defer span.End()

	var req *DeletionRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := req.Review(reviewerID, action, rejectionReason, s.now()); err != nil {
			return err
		}
		if err := s.requests.SaveReview(ctx, req); err != nil {
			return fmt.Errorf("save review: %w", err)
		}

		if req.Status == DeletionApproved {
			if _, err := s.followUps.Delete(ctx, req.FollowUpID); err != nil {
				return fmt.Errorf("delete follow-up: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, req)

	eventType := securityevent.FollowUpDeletionApproved
	if req.Status == DeletionRejected {
		eventType = securityevent.FollowUpDeletionRejected
	}
	s.record(ctx, eventType, reviewerID, map[string]any{
		"request_id":  req.ID.String(),
		"followup_id": req.FollowUpID.String(),
	})
	return req, nil
}

func (s *Service) notifyRequester(ctx context.Context, req *DeletionRequest) {
	n := notification.Notification{
		UserID:     req.RequestedByID,
		Message:    "Your follow-up deletion request was approved",
		Type:       notification.TypeSuccess,
		EntityType: entityDeletionRequest,
		EntityID:   id.Ptr(req.ID),
	}
	if req.Status == DeletionRejected {
		n.Type = notification.TypeWarning
		n.Message = "Your follow-up deletion request was rejected"
		if req.RejectionReason != nil {
			n.Message += ": " + *req.RejectionReason
		}
	}
	s.notifier.Send(ctx, n)
}

// Cancel withdraws a pending request. Only its requester may cancel; every
// failure looks the same to the caller.
func (s *Service) Cancel(ctx context.Context, requestID, requesterID id.ID) error {
	deleted, err := s.requests.DeletePending(ctx, requestID, requesterID)
	if err != nil {
		return fmt.Errorf("cancel deletion request: %w", err)
	}
	if !deleted {
		return apperror.NewNotFoundMessage("deletion request not found or unauthorized")
	}

	s.record(ctx, securityevent.FollowUpDeletionCancelled, requesterID, map[string]any{
		"request_id": requestID.String(),
	})
	return nil
}

// ListPending returns the review queue.
func (s *Service) ListPending(ctx context.Context, p domain.Pagination) (domain.ListResult[DeletionRequest], error) {
	p = p.Normalize()
	items, total, err := s.requests.ListPending(ctx, p)
	if err != nil {
		return domain.ListResult[DeletionRequest]{}, fmt.Errorf("list pending deletion requests: %w", err)
	}
	return domain.NewListResult(items, total, p), nil
}

// ListByRequester returns the requests raised by a user.
func (s *Service) ListByRequester(ctx context.Context, requesterID id.ID, p domain.Pagination) (domain.ListResult[DeletionRequest], error) {
	p = p.Normalize()
	items, total, err := s.requests.ListByRequester(ctx, requesterID, p)
	if err != nil {
		return domain.ListResult[DeletionRequest]{}, fmt.Errorf("list deletion requests: %w", err)
	}
	return domain.NewListResult(items, total, p), nil
}

func (s *Service) record(ctx context.Context, t securityevent.EventType, actor id.ID, details map[string]any) {
	s.events.Record(ctx, t, &actor, appctx.GetRequest(ctx), securityevent.SeverityOf(t), details)
}
