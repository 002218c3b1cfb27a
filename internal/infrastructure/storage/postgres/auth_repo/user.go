// Package auth_repo provides PostgreSQL implementations for auth repositories.
package auth_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"crmflow/internal/core/apperror"
	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
	"crmflow/internal/domain/auth"
	"crmflow/internal/infrastructure/storage/postgres"
)

const usersTable = "users"

var userColumns = postgres.Columns[auth.User]()

// UserRepo implements auth.UserRepository.
type UserRepo struct {
	txm *postgres.TxManager
}

// NewUserRepo creates a new user repository.
func NewUserRepo(txm *postgres.TxManager) *UserRepo {
	return &UserRepo{txm: txm}
}

// Create creates a new user.
func (r *UserRepo) Create(ctx context.Context, user *auth.User) error {
	sql, args, err := postgres.Builder().
		Insert(usersTable).
		SetMap(postgres.ValueMap(user)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, "users_email_key") {
			return apperror.NewConflict("email is already registered").WithDetail("field", "email")
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves user by ID.
func (r *UserRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": userID}, userID.String())
}

// GetByEmail retrieves user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": auth.NormalizeEmail(email)}, email)
}

func (r *UserRepo) getOne(ctx context.Context, where squirrel.Eq, key string) (*auth.User, error) {
	sql, args, err := postgres.Builder().
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var user auth.User
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &user, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", key)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// Update updates mutable user fields.
func (r *UserRepo) Update(ctx context.Context, user *auth.User) error {
	sql, args, err := updateUserQuery(user).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("user", user.ID.String())
	}

	return nil
}

func updateUserQuery(user *auth.User) squirrel.UpdateBuilder {
	return postgres.Builder().
		Update(usersTable).
		SetMap(map[string]any{
			"first_name":            user.FirstName,
			"last_name":             user.LastName,
			"role":                  string(user.Role),
			"is_active":             user.IsActive,
			"failed_login_attempts": user.FailedLoginAttempts,
			"locked_until":          user.LockedUntil,
			"last_login_at":         user.LastLoginAt,
			"updated_at":            user.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": user.ID})
}

// Exists checks if email is taken.
func (r *UserRepo) Exists(ctx context.Context, email string) (bool, error) {
	q := r.txm.GetQuerier(ctx)

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	if err := q.QueryRow(ctx, query, auth.NormalizeEmail(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}

	return exists, nil
}

// ActiveUserIDsByRoles lists active users holding any of roles.
func (r *UserRepo) ActiveUserIDsByRoles(ctx context.Context, roles []security.Role) ([]id.ID, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	sql, args, err := activeByRolesQuery(roles).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}

	return ids, nil
}

func activeByRolesQuery(roles []security.Role) squirrel.SelectBuilder {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}

	return postgres.Builder().
		Select("id").
		From(usersTable).
		Where(squirrel.Eq{"role": names, "is_active": true}).
		OrderBy("id")
}

// Ensure interface compliance
var _ auth.UserRepository = (*UserRepo)(nil)
