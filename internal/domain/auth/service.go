package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"crmflow/internal/core/apperror"
	appctx "crmflow/internal/core/context"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/core/tx"
	"crmflow/internal/domain/securityevent"
	"crmflow/pkg/logger"
)

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	MaxLoginAttempts  int
	LockDuration      time.Duration
	PasswordMinLength int
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxLoginAttempts:  5,
		LockDuration:      15 * time.Minute,
		PasswordMinLength: 8,
	}
}

// Service provides login and account administration.
type Service struct {
	userRepo   UserRepository
	txManager  tx.Manager
	jwtService *JWTService
	events     securityevent.Recorder
	config     ServiceConfig
	now        func() time.Time
}

// NewService creates a new auth service.
func NewService(
	userRepo UserRepository,
	txManager tx.Manager,
	jwtService *JWTService,
	events securityevent.Recorder,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:   userRepo,
		txManager:  txManager,
		jwtService: jwtService,
		events:     events,
		config:     config,
		now:        time.Now,
	}
}

// Login authenticates user and returns an access token.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Token, *User, error) {
	rc := appctx.GetRequest(ctx)
	email := NormalizeEmail(creds.Email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if !apperror.IsNotFound(err) {
			return nil, nil, apperror.NewInternal(err)
		}
		s.events.Record(ctx, securityevent.LoginFailed, nil, rc, securityevent.SeverityMedium,
			map[string]any{"email": email, "reason": "unknown_email"})
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	now := s.now()
	if err := user.CanLogin(now); err != nil {
		s.events.Record(ctx, securityevent.LoginFailed, &user.ID, rc, securityevent.SeverityMedium,
			map[string]any{"email": email, "reason": "account_unavailable"})
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		user.RecordFailedLogin(now, s.config.MaxLoginAttempts, s.config.LockDuration)
		if err := s.userRepo.Update(ctx, user); err != nil {
			logger.Error(ctx, "failed to record failed login", "user_id", user.ID, "error", err)
		}
		s.events.Record(ctx, securityevent.LoginFailed, &user.ID, rc, securityevent.SeverityMedium,
			map[string]any{
				"email":           email,
				"reason":          "bad_password",
				"failed_attempts": user.FailedLoginAttempts,
				"locked":          user.IsLocked(now),
			})
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	token, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return nil, nil, apperror.NewInternal(err)
	}

	user.RecordSuccessfulLogin(now)
	if err := s.userRepo.Update(ctx, user); err != nil {
		logger.Warn(ctx, "failed to record successful login", "user_id", user.ID, "error", err)
	}

	s.events.Record(ctx, securityevent.LoginSuccess, &user.ID, rc, securityevent.SeverityLow,
		map[string]any{"role": string(user.Role)})
	logger.Info(ctx, "user logged in", "user_id", user.ID, "email", user.Email)

	return token, user, nil
}

// CreateUser creates an account. Used by admins and the CLI.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if len(req.Password) < s.config.PasswordMinLength {
		return nil, apperror.NewFieldValidation("password",
			fmt.Sprintf("password must be at least %d characters", s.config.PasswordMinLength))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := NewUser(req.Email, string(passwordHash), req.Role)
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	if err := user.Validate(); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.userRepo.Exists(ctx, user.Email)
		if err != nil {
			return fmt.Errorf("check email exists: %w", err)
		}
		if exists {
			return apperror.NewConflict("email already registered").WithDetail("email", user.Email)
		}
		return s.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "user created", "user_id", user.ID, "email", user.Email, "role", user.Role)
	return user, nil
}

// GetUser retrieves a user by id.
func (s *Service) GetUser(ctx context.Context, userID id.ID) (*User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// SetActive activates or deactivates an account.
func (s *Service) SetActive(ctx context.Context, actorID, userID id.ID, active bool) (*User, error) {
	var user *User
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		user.IsActive = active
		user.UpdatedAt = s.now().UTC()
		return s.userRepo.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, securityevent.UserStatusChanged, &actorID, appctx.GetRequest(ctx), securityevent.SeverityHigh,
		map[string]any{"target_user_id": userID.String(), "is_active": active})
	return user, nil
}

// ChangeRole reassigns a user's role. The change takes effect on the next
// request through the user-context guard, regardless of issued tokens.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID id.ID, role security.Role) (*User, error) {
	if !role.IsValid() {
		return nil, apperror.NewFieldValidation("role", "unknown role").WithDetail("role", string(role))
	}

	var (
		user     *User
		previous security.Role
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		previous = user.Role
		user.Role = role
		user.UpdatedAt = s.now().UTC()
		return s.userRepo.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, securityevent.UserRoleChanged, &actorID, appctx.GetRequest(ctx), securityevent.SeverityHigh,
		map[string]any{
			"target_user_id": userID.String(),
			"previous_role":  string(previous),
			"new_role":       string(role),
		})
	logger.Info(ctx, "user role changed", "user_id", userID, "from", previous, "to", role)
	return user, nil
}
