package company

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/domain"
	"crmflow/internal/domain/notification"
)

// memRepo stores companies in memory. The paired lockingTx serializes
// transactions and restores the snapshot on error.
type memRepo struct {
	mu   sync.Mutex
	rows map[id.ID]Company
}

func newMemRepo(companies ...Company) *memRepo {
	r := &memRepo{rows: map[id.ID]Company{}}
	for _, c := range companies {
		r.rows[c.ID] = c
	}
	return r
}

func (r *memRepo) snapshot() map[id.ID]Company {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[id.ID]Company, len(r.rows))
	for k, v := range r.rows {
		cp[k] = v
	}
	return cp
}

func (r *memRepo) restore(rows map[id.ID]Company) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = rows
}

// get returns a copy of the stored row.
func (r *memRepo) get(companyID id.ID) *Company {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.rows[companyID]
	return &c
}

func (r *memRepo) GetByID(_ context.Context, companyID id.ID) (*Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[companyID]
	if !ok {
		return nil, apperror.NewNotFound("company", companyID.String())
	}
	return &c, nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, companyID id.ID) (*Company, error) {
	return r.GetByID(ctx, companyID)
}

func (r *memRepo) SaveFinalization(_ context.Context, c *Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[c.ID]
	row.FinalizationStatus = c.FinalizationStatus
	row.FinalizedByID = c.FinalizedByID
	row.FinalizedAt = c.FinalizedAt
	row.UpdatedAt = c.UpdatedAt
	r.rows[c.ID] = row
	return nil
}

func (r *memRepo) UpdateConversionStatus(_ context.Context, companyID id.ID, status ConversionStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.rows[companyID]
	row.ConversionStatus = status
	row.UpdatedAt = at
	r.rows[companyID] = row
	return nil
}

func assigneesOf(c Company) Assignees {
	return Assignees{
		CompanyID:       c.ID,
		Name:            c.Name,
		DataCollectorID: c.AssignedDataCollectorID,
		ConverterID:     c.AssignedConverterID,
	}
}

func (r *memRepo) ApprovePending(_ context.Context, ids []id.ID, by id.ID, at time.Time) ([]Assignees, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Assignees
	for _, cid := range ids {
		row, ok := r.rows[cid]
		if !ok || !row.IsPending() {
			continue
		}
		row.FinalizationStatus = statusPtr(FinalizationFinalized)
		row.FinalizedByID = &by
		row.FinalizedAt = &at
		r.rows[cid] = row
		out = append(out, assigneesOf(row))
	}
	return out, nil
}

func (r *memRepo) ResetToPending(_ context.Context, ids []id.ID, at time.Time) ([]Assignees, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Assignees
	for _, cid := range ids {
		row, ok := r.rows[cid]
		if !ok {
			continue
		}
		row.FinalizationStatus = statusPtr(FinalizationPending)
		row.FinalizedByID = nil
		row.FinalizedAt = nil
		row.UpdatedAt = at
		r.rows[cid] = row
		out = append(out, assigneesOf(row))
	}
	return out, nil
}

func (r *memRepo) ListPending(_ context.Context, scope QueueScope, p domain.Pagination) ([]Company, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Company
	for _, c := range r.rows {
		if !c.IsPending() {
			continue
		}
		if scope.ConverterID != nil && !c.IsPublic && !id.Equal(c.AssignedConverterID, *scope.ConverterID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := int64(len(out))
	if p.Offset < len(out) {
		out = out[p.Offset:]
	} else {
		out = nil
	}
	if len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, total, nil
}

func (r *memRepo) DeleteMany(_ context.Context, ids []id.ID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, cid := range ids {
		if _, ok := r.rows[cid]; ok {
			delete(r.rows, cid)
			n++
		}
	}
	return n, nil
}

// lockingTx runs one transaction at a time, which is what the row lock gives
// concurrent callers on a single company.
type lockingTx struct {
	mu   sync.Mutex
	repo *memRepo
}

func (m *lockingTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.repo.snapshot()
	if err := fn(ctx); err != nil {
		m.repo.restore(snap)
		return err
	}
	return nil
}

type memSink struct {
	mu     sync.Mutex
	sent   []notification.Notification
	failOn map[id.ID]bool
}

func (s *memSink) Notify(_ context.Context, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[n.UserID] {
		return errors.New("sink down")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *memSink) to(uid id.ID) []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notification.Notification
	for _, n := range s.sent {
		if n.UserID == uid {
			out = append(out, n)
		}
	}
	return out
}
