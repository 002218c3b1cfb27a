package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/core/tx"
	"crmflow/internal/domain/securityevent"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[id.ID]*User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[id.ID]*User{}}
}

func (r *memUserRepo) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, uid id.ID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return nil, apperror.NewNotFound("user", uid.String())
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("user", email)
}

func (r *memUserRepo) Update(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) Exists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *memUserRepo) ActiveUserIDsByRoles(_ context.Context, roles []security.Role) ([]id.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []id.ID
	for _, u := range r.users {
		for _, role := range roles {
			if u.IsActive && u.Role == role {
				out = append(out, u.ID)
			}
		}
	}
	return out, nil
}

var passthroughTx = tx.Func(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})

func newTestService(t *testing.T) (*Service, *memUserRepo, *securityevent.Capture) {
	t.Helper()
	repo := newMemUserRepo()
	events := securityevent.NewCapture()
	jwtSvc := NewJWTService(DefaultJWTConfig("test-secret"))
	cfg := DefaultServiceConfig()
	cfg.MaxLoginAttempts = 3
	return NewService(repo, passthroughTx, jwtSvc, events, cfg), repo, events
}

func seedUser(t *testing.T, repo *memUserRepo, email, password string, role security.Role) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := NewUser(email, string(hash), role)
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestLogin_Success(t *testing.T) {
	svc, repo, events := newTestService(t)
	u := seedUser(t, repo, "conv@example.com", "secret-pass", security.RoleConverter)

	token, got, err := svc.Login(context.Background(), Credentials{Email: " Conv@Example.com ", Password: "secret-pass"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Bearer", token.TokenType)

	principal, err := svc.jwtService.ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, principal.ID)
	assert.Equal(t, security.RoleConverter, principal.Role)

	assert.Equal(t, []securityevent.EventType{securityevent.LoginSuccess}, events.Types())
}

func TestLogin_LocksAfterMaxAttempts(t *testing.T) {
	svc, repo, events := newTestService(t)
	u := seedUser(t, repo, "dc@example.com", "right-pass", security.RoleDataCollector)

	for i := 0; i < 3; i++ {
		_, _, err := svc.Login(context.Background(), Credentials{Email: u.Email, Password: "wrong"})
		assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
	}

	stored, _ := repo.GetByID(context.Background(), u.ID)
	assert.Equal(t, 3, stored.FailedLoginAttempts)
	assert.True(t, stored.IsLocked(time.Now()))

	// correct password is refused while locked
	_, _, err := svc.Login(context.Background(), Credentials{Email: u.Email, Password: "right-pass"})
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	assert.Len(t, events.Types(), 4)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _, events := newTestService(t)
	_, _, err := svc.Login(context.Background(), Credentials{Email: "nobody@example.com", Password: "x"})
	assert.Equal(t, apperror.CodeUnauthorized, apperror.CodeOf(err))

	last, ok := events.Last()
	require.True(t, ok)
	assert.Equal(t, securityevent.LoginFailed, last.EventType)
	assert.Nil(t, last.UserID)
}

func TestCreateUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserRequest{Email: "new@example.com", Password: "long-enough", Role: security.RoleManager})
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: "new@example.com", Password: "long-enough", Role: security.RoleManager})
	assert.Equal(t, apperror.KindStateConflict, apperror.KindOf(err))

	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: "short@example.com", Password: "x", Role: security.RoleManager})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = svc.CreateUser(ctx, CreateUserRequest{Email: "r@example.com", Password: "long-enough", Role: "Intern"})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestChangeRole_RecordsHighSeverityEvent(t *testing.T) {
	svc, repo, events := newTestService(t)
	admin := seedUser(t, repo, "admin@example.com", "pw-admin-1", security.RoleAdmin)
	target := seedUser(t, repo, "m@example.com", "pw-manager", security.RoleManager)

	u, err := svc.ChangeRole(context.Background(), admin.ID, target.ID, security.RoleDataCollector)
	require.NoError(t, err)
	assert.Equal(t, security.RoleDataCollector, u.Role)

	last, _ := events.Last()
	assert.Equal(t, securityevent.UserRoleChanged, last.EventType)
	assert.Equal(t, securityevent.SeverityHigh, last.Severity)
	assert.Equal(t, "Manager", last.Details["previous_role"])

	_, err = svc.ChangeRole(context.Background(), admin.ID, target.ID, "Nope")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestSetActive(t *testing.T) {
	svc, repo, _ := newTestService(t)
	admin := seedUser(t, repo, "admin@example.com", "pw-admin-1", security.RoleAdmin)
	target := seedUser(t, repo, "c@example.com", "pw-convert", security.RoleConverter)

	u, err := svc.SetActive(context.Background(), admin.ID, target.ID, false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	_, _, err = svc.Login(context.Background(), Credentials{Email: target.Email, Password: "pw-convert"})
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
}

func TestValidateToken_RejectsForeignSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("one"))
	verifier := NewJWTService(DefaultJWTConfig("two"))

	tok, err := issuer.GenerateAccessToken(NewUser("a@example.com", "", security.RoleHead))
	require.NoError(t, err)

	_, err = verifier.ValidateToken(tok.AccessToken)
	assert.Error(t, err)
}
