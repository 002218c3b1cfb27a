package followup

import (
	"context"
	"sort"
	"sync"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain"
	"crmflow/internal/domain/notification"
)

// memStore backs both repositories. lockingTx serializes transactions and
// restores the snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	followUps map[id.ID]FollowUp
	requests  map[id.ID]DeletionRequest
}

func newMemStore() *memStore {
	return &memStore{followUps: map[id.ID]FollowUp{}, requests: map[id.ID]DeletionRequest{}}
}

type snapshot struct {
	followUps map[id.ID]FollowUp
	requests  map[id.ID]DeletionRequest
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{followUps: map[id.ID]FollowUp{}, requests: map[id.ID]DeletionRequest{}}
	for k, v := range s.followUps {
		snap.followUps[k] = v
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUps = snap.followUps
	s.requests = snap.requests
}

func (s *memStore) countPending(followUpID id.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.FollowUpID == followUpID && r.Status == DeletionPending {
			n++
		}
	}
	return n
}

type followUpRepo struct{ *memStore }

func (r followUpRepo) Create(_ context.Context, f *FollowUp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followUps[f.ID] = *f
	return nil
}

func (r followUpRepo) GetByID(_ context.Context, followUpID id.ID) (*FollowUp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.followUps[followUpID]
	if !ok {
		return nil, apperror.NewNotFound("followup", followUpID.String())
	}
	return &f, nil
}

func (r followUpRepo) GetForUpdate(ctx context.Context, followUpID id.ID) (*FollowUp, error) {
	return r.GetByID(ctx, followUpID)
}

func (r followUpRepo) Update(_ context.Context, f *FollowUp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followUps[f.ID] = *f
	return nil
}

func (r followUpRepo) Delete(_ context.Context, followUpID id.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.followUps[followUpID]
	delete(r.followUps, followUpID)
	return ok, nil
}

func (r followUpRepo) ListByCompany(_ context.Context, companyID id.ID) ([]FollowUp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FollowUp
	for _, f := range r.followUps {
		if f.CompanyID == companyID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FollowUpDate.Before(out[j].FollowUpDate) })
	return out, nil
}

type requestRepo struct{ *memStore }

// Create enforces one pending request per follow-up, like the partial
// unique index.
func (r requestRepo) Create(_ context.Context, req *DeletionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.FollowUpID == req.FollowUpID && existing.Status == DeletionPending {
			return alreadyPending(existing.ID)
		}
	}
	r.requests[req.ID] = *req
	return nil
}

func (r requestRepo) GetForUpdate(_ context.Context, requestID id.ID) (*DeletionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok {
		return nil, apperror.NewNotFound("deletion request", requestID.String())
	}
	return &req, nil
}

func (r requestRepo) FindPending(_ context.Context, followUpID id.ID) (*DeletionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.FollowUpID == followUpID && req.Status == DeletionPending {
			return &req, nil
		}
	}
	return nil, nil
}

func (r requestRepo) SaveReview(_ context.Context, req *DeletionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = *req
	return nil
}

func (r requestRepo) DeletePending(_ context.Context, requestID, requesterID id.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok || req.RequestedByID != requesterID || req.Status != DeletionPending {
		return false, nil
	}
	delete(r.requests, requestID)
	return true, nil
}

func (r requestRepo) list(match func(DeletionRequest) bool, p domain.Pagination) ([]DeletionRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DeletionRequest
	for _, req := range r.requests {
		if match(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	total := int64(len(out))
	if p.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[p.Offset:]
	if len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, total, nil
}

func (r requestRepo) ListPending(_ context.Context, p domain.Pagination) ([]DeletionRequest, int64, error) {
	return r.list(func(req DeletionRequest) bool { return req.Status == DeletionPending }, p)
}

func (r requestRepo) ListByRequester(_ context.Context, requesterID id.ID, p domain.Pagination) ([]DeletionRequest, int64, error) {
	return r.list(func(req DeletionRequest) bool { return req.RequestedByID == requesterID }, p)
}

type lockingTx struct {
	mu    sync.Mutex
	store *memStore
}

func (m *lockingTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

type memSink struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (s *memSink) Notify(_ context.Context, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *memSink) to(userID id.ID) []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notification.Notification
	for _, n := range s.sent {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type staticDirectory map[security.Role][]id.ID

func (d staticDirectory) ActiveUserIDsByRoles(_ context.Context, roles []security.Role) ([]id.ID, error) {
	var out []id.ID
	for _, r := range roles {
		out = append(out, d[r]...)
	}
	return out, nil
}
