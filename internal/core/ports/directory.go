package ports

import (
	"errors"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
)

// UserDirectory is the port interface for the external user store. All calls
// are synchronous; the reconciler runs once per request with no suspension
// points. Implementations must be safe for concurrent use.
type UserDirectory interface {
	// FindByUsername returns the user with the given username.
	// Returns ErrUserNotFound if no such user exists.
	FindByUsername(username string) (*domain.UserRecord, error)

	// FindByID returns the user with the given ID.
	// Returns ErrUserNotFound if no such user exists.
	FindByID(id string) (*domain.UserRecord, error)

	// Create stores a new user record. Returns ErrAlreadyExists if the
	// username is taken; the directory's uniqueness constraint is the sole
	// guard against concurrent provisioning races.
	Create(user *domain.UserRecord) error

	// UpdateEmail sets the stored email for a user.
	UpdateEmail(id, email string) error

	// SetStatus changes a user's lifecycle status.
	SetStatus(id string, status domain.UserStatus) error
}

// MappingStore is the port interface for the authname-to-user mapping store.
type MappingStore interface {
	// FindMapping returns the mapping for (authname, provider).
	// Returns ErrMappingNotFound if none exists.
	FindMapping(authname, provider string) (*domain.AccountMapping, error)

	// UpsertMapping records a mapping, replacing any existing mapping for
	// the same (authname, provider) pair. Idempotent.
	UpsertMapping(m *domain.AccountMapping) error
}

// RoleStore is the port interface for role membership.
type RoleStore interface {
	// ListRoleNamesForUser returns the roles currently assigned to a user.
	ListRoleNamesForUser(userID string) ([]string, error)

	// RoleExists reports whether a role name is known to the store.
	// Unknown roles are never auto-created by this module.
	RoleExists(name string) (bool, error)

	// GrantRole assigns a role to a user. Granting an already-held role is
	// a no-op.
	GrantRole(userID, name string) error

	// RevokeRole removes a role from a user. Revoking an unheld role is a
	// no-op.
	RevokeRole(userID, name string) error
}

var (
	// ErrUserNotFound is returned when a user lookup finds nothing.
	ErrUserNotFound = errors.New("user not found")

	// ErrMappingNotFound is returned when no mapping exists for an
	// (authname, provider) pair.
	ErrMappingNotFound = errors.New("account mapping not found")

	// ErrRoleNotFound is returned when a role operation names an unknown role.
	ErrRoleNotFound = errors.New("role not found")

	// ErrAlreadyExists is returned when a create hits a uniqueness
	// constraint, typically the loser of a provisioning race.
	ErrAlreadyExists = errors.New("record already exists")
)
