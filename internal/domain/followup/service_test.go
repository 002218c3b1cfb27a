package followup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain"
	"crmflow/internal/domain/notification"
	"crmflow/internal/domain/securityevent"
)

type fixture struct {
	svc       *Service
	store     *memStore
	sink      *memSink
	events    *securityevent.Capture
	admin     id.ID
	manager   id.ID
	requester id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(),
		sink:      &memSink{},
		events:    securityevent.NewCapture(),
		admin:     id.New(),
		manager:   id.New(),
		requester: id.New(),
	}
	directory := staticDirectory{
		security.RoleAdmin:   {f.admin},
		security.RoleManager: {f.manager},
	}
	f.svc = NewService(
		followUpRepo{f.store},
		requestRepo{f.store},
		&lockingTx{store: f.store},
		notification.NewDispatcher(f.sink, directory),
		f.events,
	)
	return f
}

var day = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func (f *fixture) seedFollowUp(t *testing.T) *FollowUp {
	t.Helper()
	fu, err := f.svc.Create(context.Background(), CreateInput{
		CompanyID:     id.New(),
		ContactedDate: day,
		FollowUpDate:  day.Add(48 * time.Hour),
		Notes:         "call back",
	})
	require.NoError(t, err)
	return fu
}

func strPtr(s string) *string { return &s }

func TestCreate_DateOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		followUp time.Time
		ok       bool
	}{
		{"after", day.Add(time.Minute), true},
		{"equal", day, false},
		{"before", day.Add(-24 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, CreateInput{CompanyID: id.New(), ContactedDate: day, FollowUpDate: tt.followUp})
			if tt.ok {
				require.NoError(t, err)
				return
			}
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.KindValidation, appErr.Kind)
			assert.Equal(t, "follow_up_date", appErr.Details["field"])
		})
	}
}

func TestUpdate_RevalidatesMergedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	// moving only the contacted date past the stored follow-up date fails
	late := day.Add(72 * time.Hour)
	_, err := f.svc.Update(ctx, fu.ID, Patch{ContactedDate: &late})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	stored, err := f.svc.Get(ctx, fu.ID)
	require.NoError(t, err)
	assert.Equal(t, day, stored.ContactedDate)

	later := day.Add(96 * time.Hour)
	updated, err := f.svc.Update(ctx, fu.ID, Patch{ContactedDate: &late, FollowUpDate: &later, Notes: strPtr("moved")})
	require.NoError(t, err)
	assert.Equal(t, "moved", updated.Notes)

	_, err = f.svc.Update(ctx, fu.ID, Patch{})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.svc.Update(ctx, id.New(), Patch{Notes: strPtr("x")})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestDeletionWorkflow_ApproveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	req, err := f.svc.ProposeDeletion(ctx, fu.ID, f.requester, strPtr("duplicate entry, wrong date"))
	require.NoError(t, err)
	assert.Equal(t, DeletionPending, req.Status)
	assert.Equal(t, fu.CompanyID, req.CompanyID)
	assert.Equal(t, "duplicate entry, wrong date", *req.Reason)

	// reviewers are told about the new request
	require.Len(t, f.sink.to(f.manager), 1)
	require.Len(t, f.sink.to(f.admin), 1)
	assert.Equal(t, notification.TypeInfo, f.sink.to(f.manager)[0].Type)

	reviewed, err := f.svc.Review(ctx, req.ID, f.manager, ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, DeletionApproved, reviewed.Status)
	assert.Equal(t, f.manager, *reviewed.ReviewedByID)
	assert.NotNil(t, reviewed.ReviewedAt)
	assert.Nil(t, reviewed.RejectionReason)

	_, err = f.svc.Get(ctx, fu.ID)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	got := f.sink.to(f.requester)
	require.Len(t, got, 1)
	assert.Equal(t, notification.TypeSuccess, got[0].Type)

	assert.Equal(t, []securityevent.EventType{
		securityevent.FollowUpDeletionRequested,
		securityevent.FollowUpDeletionApproved,
	}, f.events.Types())
}

func TestReview_RejectNotifiesWithReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	req, err := f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
	require.NoError(t, err)

	reviewed, err := f.svc.Review(ctx, req.ID, f.manager, ActionReject, strPtr("  still relevant "))
	require.NoError(t, err)
	assert.Equal(t, DeletionRejected, reviewed.Status)
	assert.Equal(t, "still relevant", *reviewed.RejectionReason)

	// the follow-up survives a rejection
	_, err = f.svc.Get(ctx, fu.ID)
	require.NoError(t, err)

	got := f.sink.to(f.requester)
	require.Len(t, got, 1)
	assert.Equal(t, notification.TypeWarning, got[0].Type)
	assert.Contains(t, got[0].Message, "still relevant")
}

func TestReview_TerminalRequestsAreImmutable(t *testing.T) {
	for _, first := range []ReviewAction{ActionApprove, ActionReject} {
		for _, second := range []ReviewAction{ActionApprove, ActionReject} {
			t.Run(string(first)+" then "+string(second), func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				fu := f.seedFollowUp(t)

				req, err := f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
				require.NoError(t, err)
				_, err = f.svc.Review(ctx, req.ID, f.manager, first, nil)
				require.NoError(t, err)

				_, err = f.svc.Review(ctx, req.ID, f.admin, second, strPtr("again"))
				assert.Equal(t, apperror.KindStateConflict, apperror.KindOf(err))
				assert.Equal(t, apperror.CodeDeletionAlreadyReviewed, apperror.CodeOf(err))

				stored, _ := requestRepo{f.store}.GetForUpdate(ctx, req.ID)
				assert.Equal(t, f.manager, *stored.ReviewedByID)
			})
		}
	}
}

func TestReview_ApproveWhenFollowUpAlreadyGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	req, err := f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteDirect(ctx, fu.ID, f.admin))

	reviewed, err := f.svc.Review(ctx, req.ID, f.manager, ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, DeletionApproved, reviewed.Status)
}

func TestReview_MissingRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Review(context.Background(), id.New(), f.manager, ActionApprove, nil)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestPropose_OnePendingPerFollowUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	_, err := f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
	require.NoError(t, err)

	_, err = f.svc.ProposeDeletion(ctx, fu.ID, id.New(), nil)
	assert.Equal(t, apperror.CodeDeletionAlreadyPending, apperror.CodeOf(err))
	assert.Equal(t, 1, f.store.countPending(fu.ID))
}

func TestPropose_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProposeDeletion(ctx, fu.ID, id.New(), nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if apperror.CodeOf(err) == apperror.CodeDeletionAlreadyPending {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, 1, f.store.countPending(fu.ID))
}

func TestPropose_NewRequestAfterRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	req, err := f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, req.ID, f.manager, ActionReject, nil)
	require.NoError(t, err)

	_, err = f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
	require.NoError(t, err)
}

func TestPropose_MissingFollowUp(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProposeDeletion(context.Background(), id.New(), f.requester, nil)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Empty(t, f.sink.sent)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	req, err := f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
	require.NoError(t, err)

	// someone else's request and an unknown id fail the same way
	errForeign := f.svc.Cancel(ctx, req.ID, f.manager)
	errUnknown := f.svc.Cancel(ctx, id.New(), f.requester)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(errForeign))
	assert.Equal(t, errForeign.Error(), errUnknown.Error())

	require.NoError(t, f.svc.Cancel(ctx, req.ID, f.requester))
	assert.Equal(t, 0, f.store.countPending(fu.ID))
	assert.Equal(t, securityevent.FollowUpDeletionCancelled, f.events.Types()[len(f.events.Types())-1])

	// a reviewed request can no longer be cancelled
	req, err = f.svc.ProposeDeletion(ctx, fu.ID, f.requester, nil)
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, req.ID, f.manager, ActionReject, nil)
	require.NoError(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(f.svc.Cancel(ctx, req.ID, f.requester)))
}

func TestDeleteDirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fu := f.seedFollowUp(t)

	require.NoError(t, f.svc.DeleteDirect(ctx, fu.ID, f.admin))
	assert.Equal(t, []securityevent.EventType{securityevent.FollowUpDirectDelete}, f.events.Types())
	assert.Empty(t, f.store.requests)

	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(f.svc.DeleteDirect(ctx, fu.ID, f.admin)))
}

func TestListQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.seedFollowUp(t), f.seedFollowUp(t)

	_, err := f.svc.ProposeDeletion(ctx, a.ID, f.requester, nil)
	require.NoError(t, err)
	other, err := f.svc.ProposeDeletion(ctx, b.ID, id.New(), nil)
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, other.ID, f.manager, ActionReject, nil)
	require.NoError(t, err)

	pending, err := f.svc.ListPending(ctx, domain.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.TotalCount)
	assert.Equal(t, domain.DefaultLimit, pending.Limit)

	mine, err := f.svc.ListByRequester(ctx, f.requester, domain.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, a.ID, mine.Items[0].FollowUpID)

	byCompany, err := f.svc.ListByCompany(ctx, id.New())
	require.NoError(t, err)
	assert.NotNil(t, byCompany)
	assert.Empty(t, byCompany)
}

func TestParseReviewAction(t *testing.T) {
	a, err := ParseReviewAction(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, a)

	_, err = ParseReviewAction("delete")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}
