// Package webserverauth provides a Caddy v2 handler that trusts the upstream
// web server's authentication (HTTP Negotiate, client certificates, basic
// auth behind a reverse proxy) and synchronizes the asserted principal with a
// local user account: session establishment and teardown, automatic mapping,
// account provisioning, and email and role synchronization on every login.
package webserverauth

import (
	"net/http"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"

	caddyadapter "github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driving/caddy"
)

const Version = "0.3.0"

func init() {
	caddy.RegisterModule(caddyadapter.WebServerAuth{})
	httpcaddyfile.RegisterHandlerDirective("webserver_auth", caddyadapter.ParseCaddyfile)
}

// WebServerAuth is the handler module. See the internal caddy adapter for
// configuration fields.
type WebServerAuth = caddyadapter.WebServerAuth

// Identity is the resolved (user, authname) pair for an authenticated request.
type Identity = caddyadapter.Identity

// GetIdentity retrieves the authenticated identity from the request context.
// Returns nil if the request is anonymous.
func GetIdentity(r *http.Request) *Identity {
	return caddyadapter.GetIdentity(r)
}
