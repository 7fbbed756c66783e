package caddy

import (
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
)

// ParseCaddyfile sets up the handler from Caddyfile tokens.
//
// Syntax:
//
//	webserver_auth {
//	    identity_headers <header...>
//	    strip_domain_prefix <bool>
//	    strip_at_suffix <bool>
//	    create_user
//	    match_existing
//	    skip_check
//	    logout_on_empty <bool>
//	    email_header <header>
//	    sync_email
//	    email_domain <domain>
//	    groups_count_header <header>
//	    group_header_prefix <prefix>
//	    role_map <group:role;group:role>
//	    directory_file <path>
//	    directory_refresh_interval <duration>
//	    session_cookie_name <name>
//	    session_duration <duration>
//	    key_file <path>
//	    cache_bypass
//	    bypass_cookie_name <name>
//	    strip_identity_headers <bool>
//	    user_header <header>
//	    metrics_enabled
//	}
func ParseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var w WebServerAuth
	err := w.UnmarshalCaddyfile(h.Dispenser)
	return &w, err
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (w *WebServerAuth) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // consume directive name

	for d.NextBlock(0) {
		switch d.Val() {
		case "identity_headers":
			w.IdentityHeaders = d.RemainingArgs()
			if len(w.IdentityHeaders) == 0 {
				return d.ArgErr()
			}

		case "strip_domain_prefix":
			v, err := parseBoolArg(d)
			if err != nil {
				return err
			}
			w.StripDomainPrefix = v

		case "strip_at_suffix":
			v, err := parseBoolArg(d)
			if err != nil {
				return err
			}
			w.StripAtSuffix = v

		case "create_user":
			w.CreateUser = true

		case "match_existing":
			w.MatchExisting = true

		case "skip_check":
			w.SkipCheck = true

		case "logout_on_empty":
			v, err := parseBoolArg(d)
			if err != nil {
				return err
			}
			w.LogoutOnEmpty = v

		case "email_header":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.EmailHeader = d.Val()

		case "sync_email":
			w.SyncEmail = true

		case "email_domain":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.EmailDomain = d.Val()

		case "groups_count_header":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.GroupsCountHeader = d.Val()

		case "group_header_prefix":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.GroupHeaderPrefix = d.Val()

		case "role_map":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.RoleMap = d.Val()

		case "directory_file":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.DirectoryFile = d.Val()

		case "directory_refresh_interval":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.DirectoryRefreshInterval = d.Val()

		case "session_cookie_name":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.SessionCookieName = d.Val()

		case "session_duration":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.SessionDuration = d.Val()

		case "key_file":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.KeyFile = d.Val()

		case "cache_bypass":
			w.CacheBypass = true

		case "bypass_cookie_name":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.BypassCookieName = d.Val()

		case "strip_identity_headers":
			v, err := parseBoolArg(d)
			if err != nil {
				return err
			}
			w.StripIdentityHeaders = v

		case "user_header":
			if !d.NextArg() {
				return d.ArgErr()
			}
			w.UserHeader = d.Val()

		case "metrics_enabled":
			w.MetricsEnabled = true

		default:
			return d.Errf("unrecognized subdirective %q", d.Val())
		}
	}

	return nil
}

// parseBoolArg reads a single "true"/"false" argument for toggles that
// default to true and therefore need an explicit off switch.
func parseBoolArg(d *caddyfile.Dispenser) (*bool, error) {
	if !d.NextArg() {
		return nil, d.ArgErr()
	}
	switch d.Val() {
	case "true":
		return boolPtr(true), nil
	case "false":
		return boolPtr(false), nil
	default:
		return nil, d.Errf("expected true or false, got %q", d.Val())
	}
}
