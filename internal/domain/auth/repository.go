package auth

import (
	"context"

	"crmflow/internal/core/id"
	"crmflow/internal/core/security"
)

// UserRepository defines user storage operations.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves user by ID.
	GetByID(ctx context.Context, userID id.ID) (*User, error)

	// GetByEmail retrieves user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates mutable user fields.
	Update(ctx context.Context, user *User) error

	// Exists checks if email is taken.
	Exists(ctx context.Context, email string) (bool, error)

	// ActiveUserIDsByRoles lists active users holding any of roles.
	ActiveUserIDsByRoles(ctx context.Context, roles []security.Role) ([]id.ID, error)
}
