package ports

import (
	"errors"
)

// SessionState is what the session facility holds for an authenticated
// principal: the local user and the canonical authname that logged it in.
// BoundAuthname is compared against the freshly asserted identity on every
// request to detect drift.
type SessionState struct {
	UserID        string
	BoundAuthname string
}

// SessionStore is the port interface for session management.
type SessionStore interface {
	// Create creates a session token binding a user to an authname.
	Create(state *SessionState) (string, error)

	// Get retrieves a session by token. Returns ErrSessionNotFound if the
	// token is invalid, expired, or not found.
	Get(token string) (*SessionState, error)

	// Delete removes a session. For stateless implementations (JWT), this
	// may be a no-op as actual cookie removal happens in the HTTP layer.
	Delete(token string) error
}

// ErrSessionNotFound is returned when a session cannot be found or is invalid.
var ErrSessionNotFound = errors.New("session not found")
