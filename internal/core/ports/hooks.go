package ports

import (
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
)

// ProvisionHook is invoked after a brand-new account has been created and
// mapped. Hooks run in registration order; a hook error is logged and does
// not undo the provisioning.
type ProvisionHook interface {
	OnAccountProvisioned(user *domain.UserRecord) error
}

// ProvisionHookFunc adapts a function to the ProvisionHook interface.
type ProvisionHookFunc func(user *domain.UserRecord) error

// OnAccountProvisioned implements ProvisionHook.
func (f ProvisionHookFunc) OnAccountProvisioned(user *domain.UserRecord) error {
	return f(user)
}
