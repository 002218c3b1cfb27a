package access

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/cache"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/auth"
	"crmflow/internal/domain/company"
	"crmflow/internal/domain/securityevent"
)

var errStorage = errors.New("connection refused")

type memUsers struct {
	users map[id.ID]*auth.User
	err   error
}

func (m *memUsers) GetByID(_ context.Context, userID id.ID) (*auth.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, apperror.NewNotFound("user", userID)
	}
	cp := *u
	return &cp, nil
}

type memCompanies struct {
	rows map[id.ID]*company.Company
	err  error
}

func (m *memCompanies) GetByID(_ context.Context, companyID id.ID) (*company.Company, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.rows[companyID]
	if !ok {
		return nil, apperror.NewNotFound("company", companyID)
	}
	cp := *c
	return &cp, nil
}

type memOwnership struct {
	rows    map[id.ID]Ownership
	err     error
	targets []OwnershipTarget
}

func (m *memOwnership) Ownership(_ context.Context, target OwnershipTarget, resourceID id.ID) (Ownership, error) {
	m.targets = append(m.targets, target)
	if m.err != nil {
		return Ownership{}, m.err
	}
	o, ok := m.rows[resourceID]
	if !ok {
		return Ownership{}, apperror.NewNotFound(target.Table, resourceID)
	}
	return o, nil
}

type memOverrides struct {
	mu   sync.Mutex
	rows []Override
	err  error
}

func (m *memOverrides) ListByRole(_ context.Context, role security.Role) ([]Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []Override
	for _, o := range m.rows {
		if o.Role == role {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOverrides) Upsert(_ context.Context, o Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Role == o.Role && m.rows[i].Permission == o.Permission {
			m.rows[i] = o
			return nil
		}
	}
	m.rows = append(m.rows, o)
	return nil
}

func (m *memOverrides) Delete(_ context.Context, role security.Role, permission string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, o := range m.rows {
		if o.Role != role || o.Permission != permission {
			kept = append(kept, o)
		}
	}
	m.rows = kept
	return nil
}

// counterCache is a minimal cache.Cache; ttl is ignored.
type counterCache struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newCounterCache() *counterCache {
	return &counterCache{values: map[string]string{}}
}

func (c *counterCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *counterCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *counterCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *counterCache) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	n, _ := strconv.ParseInt(c.values[key], 10, 64)
	n++
	c.values[key] = strconv.FormatInt(n, 10)
	return n, nil
}

type fixture struct {
	gate      *Gate
	events    *securityevent.Capture
	users     *memUsers
	companies *memCompanies
	ownership *memOwnership
	overrides *memOverrides
	counters  *counterCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		events:    securityevent.NewCapture(),
		users:     &memUsers{users: map[id.ID]*auth.User{}},
		companies: &memCompanies{rows: map[id.ID]*company.Company{}},
		ownership: &memOwnership{rows: map[id.ID]Ownership{}},
		overrides: &memOverrides{},
		counters:  newCounterCache(),
	}
	f.gate = NewGate(Dependencies{
		Permissions: NewPermissionSource(f.overrides, f.events),
		Users:       f.users,
		Companies:   f.companies,
		Ownership:   f.ownership,
		Events:      f.events,
		Activity:    NewSuspiciousActivityTracker(f.counters, f.events, time.Minute, 3),
	})
	return f
}

func request(role security.Role, method, path string) *appctx.RequestContext {
	return &appctx.RequestContext{
		Principal:   &appctx.Principal{ID: id.New(), Email: "caller@example.com", Role: role},
		Method:      method,
		Path:        path,
		OriginalURL: path,
		IPAddress:   "10.0.0.1",
		UserAgent:   "test",
		Params:      map[string]string{},
	}
}

func (f *fixture) lastType(t *testing.T) securityevent.EventType {
	t.Helper()
	ev, ok := f.events.Last()
	if !ok {
		t.Fatal("no security event recorded")
	}
	return ev.EventType
}
