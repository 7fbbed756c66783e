package directory

import (
	"context"
	"sync"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/ports"
)

// InMemoryDirectory is an in-memory implementation of UserDirectory,
// MappingStore and RoleStore. Suitable for testing and development. The
// username uniqueness check in Create is the guard that concurrent
// provisioning races rely on.
type InMemoryDirectory struct {
	mu         sync.RWMutex
	byID       map[string]*domain.UserRecord
	byUsername map[string]string            // username -> user ID
	mappings   map[string]map[string]string // provider -> authname -> user ID
	roles      map[string]bool              // known role names
	userRoles  map[string]map[string]bool   // user ID -> role name set
}

// NewInMemoryDirectory creates a new in-memory directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		byID:       make(map[string]*domain.UserRecord),
		byUsername: make(map[string]string),
		mappings:   make(map[string]map[string]string),
		roles:      make(map[string]bool),
		userRoles:  make(map[string]map[string]bool),
	}
}

// AddRole registers a role name.
// This is a seeding helper - production deployments load from files.
func (d *InMemoryDirectory) AddRole(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[name] = true
}

// FindByUsername returns the user with the given username.
func (d *InMemoryDirectory) FindByUsername(username string) (*domain.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byUsername[username]
	if !ok {
		return nil, ports.ErrUserNotFound
	}
	return copyUser(d.byID[id]), nil
}

// FindByID returns the user with the given ID.
func (d *InMemoryDirectory) FindByID(id string) (*domain.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ports.ErrUserNotFound
	}
	return copyUser(u), nil
}

// Create stores a new user record. Returns ports.ErrAlreadyExists if the
// username or ID is already taken.
func (d *InMemoryDirectory) Create(user *domain.UserRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byUsername[user.Username]; ok {
		return ports.ErrAlreadyExists
	}
	if _, ok := d.byID[user.ID]; ok {
		return ports.ErrAlreadyExists
	}
	d.byID[user.ID] = copyUser(user)
	d.byUsername[user.Username] = user.ID
	return nil
}

// UpdateEmail sets the stored email for a user.
func (d *InMemoryDirectory) UpdateEmail(id, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return ports.ErrUserNotFound
	}
	u.Email = email
	return nil
}

// SetStatus changes a user's lifecycle status.
func (d *InMemoryDirectory) SetStatus(id string, status domain.UserStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return ports.ErrUserNotFound
	}
	u.Status = status
	return nil
}

// FindMapping returns the mapping for (authname, provider).
func (d *InMemoryDirectory) FindMapping(authname, provider string) (*domain.AccountMapping, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	uid, ok := d.mappings[provider][authname]
	if !ok {
		return nil, ports.ErrMappingNotFound
	}
	return &domain.AccountMapping{Authname: authname, Provider: provider, UserID: uid}, nil
}

// UpsertMapping records a mapping. Idempotent.
func (d *InMemoryDirectory) UpsertMapping(m *domain.AccountMapping) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	byAuthname, ok := d.mappings[m.Provider]
	if !ok {
		byAuthname = make(map[string]string)
		d.mappings[m.Provider] = byAuthname
	}
	byAuthname[m.Authname] = m.UserID
	return nil
}

// ListRoleNamesForUser returns the roles currently assigned to a user.
func (d *InMemoryDirectory) ListRoleNamesForUser(userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for name := range d.userRoles[userID] {
		names = append(names, name)
	}
	return names, nil
}

// RoleExists reports whether a role name is known.
func (d *InMemoryDirectory) RoleExists(name string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roles[name], nil
}

// GrantRole assigns a role to a user.
func (d *InMemoryDirectory) GrantRole(userID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.roles[name] {
		return ports.ErrRoleNotFound
	}
	set, ok := d.userRoles[userID]
	if !ok {
		set = make(map[string]bool)
		d.userRoles[userID] = set
	}
	set[name] = true
	return nil
}

// RevokeRole removes a role from a user.
func (d *InMemoryDirectory) RevokeRole(userID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.userRoles[userID], name)
	return nil
}

// Refresh is a no-op for the in-memory directory.
func (d *InMemoryDirectory) Refresh(ctx context.Context) error {
	return nil
}

func copyUser(u *domain.UserRecord) *domain.UserRecord {
	c := *u
	return &c
}

// Ensure InMemoryDirectory implements the directory ports
var (
	_ ports.UserDirectory = (*InMemoryDirectory)(nil)
	_ ports.MappingStore  = (*InMemoryDirectory)(nil)
	_ ports.RoleStore     = (*InMemoryDirectory)(nil)
)
