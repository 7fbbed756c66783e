package caddy

import (
	"fmt"
	"regexp"
	"time"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
)

// Config holds the configuration for the webserver auth handler.
type Config struct {
	// IdentityHeaders is the ordered list of trusted request headers that may
	// carry the upstream-asserted principal. The first non-empty value wins.
	// Defaults to ["Remote-User"].
	IdentityHeaders []string `json:"identity_headers,omitempty"`

	// StripDomainPrefix removes an NTLM-style "DOMAIN\" prefix from the
	// asserted name. Defaults to true.
	StripDomainPrefix *bool `json:"strip_domain_prefix,omitempty"`

	// StripAtSuffix removes a "@domain" suffix from the asserted name.
	// Defaults to true.
	StripAtSuffix *bool `json:"strip_at_suffix,omitempty"`

	// CreateUser enables provisioning a brand-new local account when the
	// asserted name matches no mapping and no existing username.
	CreateUser bool `json:"create_user,omitempty"`

	// MatchExisting enables automatically mapping the asserted name to an
	// existing local account with the same username.
	MatchExisting bool `json:"match_existing,omitempty"`

	// SkipCheck resolves purely by username equality, ignoring the mapping
	// store. Intended for directories that already mirror the external realm.
	SkipCheck bool `json:"skip_check,omitempty"`

	// LogoutOnEmpty terminates an authenticated session when a request
	// arrives with no identity assertion. Defaults to true.
	LogoutOnEmpty *bool `json:"logout_on_empty,omitempty"`

	// EmailHeader is the trusted header carrying the user's email.
	// Empty disables email reading.
	EmailHeader string `json:"email_header,omitempty"`

	// SyncEmail updates the stored email from EmailHeader on every login.
	SyncEmail bool `json:"sync_email,omitempty"`

	// EmailDomain, when set, seeds "<authname>@<EmailDomain>" as the email
	// of provisioned accounts that arrive without a trusted email value.
	EmailDomain string `json:"email_domain,omitempty"`

	// GroupsCountHeader is the trusted header carrying the number of
	// asserted external groups. Empty disables group reading.
	GroupsCountHeader string `json:"groups_count_header,omitempty"`

	// GroupHeaderPrefix is the prefix of the indexed group headers:
	// "<prefix>1" .. "<prefix>N" with N taken from GroupsCountHeader.
	// Defaults to "Remote-Group-".
	GroupHeaderPrefix string `json:"group_header_prefix,omitempty"`

	// RoleMap maps external groups to local roles as a single delimited
	// string: "extGroup:role;extGroup2:role2". Empty disables role sync.
	RoleMap string `json:"role_map,omitempty"`

	// DirectoryFile is the path to a local user directory seed file
	// (JSON or YAML). Required unless stores are injected programmatically.
	DirectoryFile string `json:"directory_file,omitempty"`

	// DirectoryRefreshInterval is how often to reload the directory file
	// (e.g. "5m"). Defaults to "5m". "0" disables reloading.
	DirectoryRefreshInterval string `json:"directory_refresh_interval,omitempty"`

	// SessionCookieName is the name of the session cookie.
	// Defaults to "webauth_session".
	SessionCookieName string `json:"session_cookie_name,omitempty"`

	// SessionDuration is how long sessions last (e.g. "8h").
	// Defaults to "8h".
	SessionDuration string `json:"session_duration,omitempty"`

	// KeyFile is the path to the RSA private key (PEM) that signs session
	// cookies. Required.
	KeyFile string `json:"key_file,omitempty"`

	// CacheBypass enables the cache-bypass guard for deployments with a
	// page cache in front of anonymous responses.
	CacheBypass bool `json:"cache_bypass,omitempty"`

	// BypassCookieName is the name of the short-lived cookie the guard uses
	// to avoid redirect loops. Defaults to "webauth_seen".
	BypassCookieName string `json:"bypass_cookie_name,omitempty"`

	// StripIdentityHeaders removes the configured identity, email and group
	// headers before the request is passed downstream, so clients cannot
	// spoof them past this handler. Defaults to true.
	StripIdentityHeaders *bool `json:"strip_identity_headers,omitempty"`

	// UserHeader, when set, carries the resolved local username downstream.
	// Must start with "X-". Defaults to "X-Auth-User"; "-" disables it.
	UserHeader string `json:"user_header,omitempty"`

	// MetricsEnabled enables Prometheus metrics exposition.
	// Defaults to false.
	MetricsEnabled bool `json:"metrics_enabled,omitempty"`
}

var validHeaderName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.KeyFile == "" {
		return domain.ConfigError("key_file is required")
	}

	for i, h := range c.IdentityHeaders {
		if !validHeaderName.MatchString(h) {
			return fmt.Errorf("identity_headers[%d]: invalid header name %q", i, h)
		}
	}
	if c.EmailHeader != "" && !validHeaderName.MatchString(c.EmailHeader) {
		return fmt.Errorf("email_header: invalid header name %q", c.EmailHeader)
	}
	if c.GroupsCountHeader != "" && !validHeaderName.MatchString(c.GroupsCountHeader) {
		return fmt.Errorf("groups_count_header: invalid header name %q", c.GroupsCountHeader)
	}

	if c.SyncEmail && c.EmailHeader == "" {
		return fmt.Errorf("email_header is required when sync_email is enabled")
	}
	if c.RoleMap != "" && c.GroupsCountHeader == "" {
		return fmt.Errorf("groups_count_header is required when role_map is set")
	}

	if c.UserHeader != "" && c.UserHeader != "-" {
		if !validHeaderName.MatchString(c.UserHeader) || len(c.UserHeader) < 2 || c.UserHeader[:2] != "X-" {
			return fmt.Errorf("user_header %q must start with X- and contain only A-Za-z0-9-", c.UserHeader)
		}
	}

	if c.SessionDuration != "" {
		if _, err := time.ParseDuration(c.SessionDuration); err != nil {
			return fmt.Errorf("parse session_duration: %w", err)
		}
	}
	if c.DirectoryRefreshInterval != "" && c.DirectoryRefreshInterval != "0" {
		if _, err := time.ParseDuration(c.DirectoryRefreshInterval); err != nil {
			return fmt.Errorf("parse directory_refresh_interval: %w", err)
		}
	}

	return nil
}

// SetDefaults applies default values to unset configuration fields.
func (c *Config) SetDefaults() {
	if len(c.IdentityHeaders) == 0 {
		c.IdentityHeaders = []string{"Remote-User"}
	}
	if c.StripDomainPrefix == nil {
		c.StripDomainPrefix = boolPtr(true)
	}
	if c.StripAtSuffix == nil {
		c.StripAtSuffix = boolPtr(true)
	}
	if c.LogoutOnEmpty == nil {
		c.LogoutOnEmpty = boolPtr(true)
	}
	if c.StripIdentityHeaders == nil {
		c.StripIdentityHeaders = boolPtr(true)
	}
	if c.GroupHeaderPrefix == "" {
		c.GroupHeaderPrefix = "Remote-Group-"
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = "webauth_session"
	}
	if c.SessionDuration == "" {
		c.SessionDuration = "8h"
	}
	if c.DirectoryRefreshInterval == "" {
		c.DirectoryRefreshInterval = "5m"
	}
	if c.BypassCookieName == "" {
		c.BypassCookieName = "webauth_seen"
	}
	if c.UserHeader == "" {
		c.UserHeader = "X-Auth-User"
	}
}

func boolPtr(v bool) *bool {
	b := v
	return &b
}
