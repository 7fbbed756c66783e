package caddy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/ports"

	"github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driven/directory"
	"github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driven/metrics"
	"github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driven/session"
)

// identityContextKey is the context key for storing the resolved identity.
type identityContextKey struct{}

// Identity is the resolved (user, authname) pair exposed to downstream
// handlers after a successful reconciliation.
type Identity struct {
	// UserID is the local account ID.
	UserID string

	// Username is the local account name.
	Username string

	// Authname is the canonical external identity that authenticated the
	// session.
	Authname string

	// Email is the account email after synchronization.
	Email string
}

// GetIdentity retrieves the authenticated identity from the request context.
// Returns nil if the request is anonymous.
func GetIdentity(r *http.Request) *Identity {
	id, _ := r.Context().Value(identityContextKey{}).(*Identity)
	return id
}

// WebServerAuth is a Caddy HTTP handler module that trusts the upstream
// server's authentication and synchronizes the asserted external identity
// with a local account: establishing or ending the session, auto-mapping or
// provisioning accounts, and synchronizing email and role membership on
// every login.
type WebServerAuth struct {
	// Configuration embedded directly
	Config

	// Runtime state (not serialized)
	userDirectory ports.UserDirectory
	mappingStore  ports.MappingStore
	roleStore     ports.RoleStore
	sessionStore  ports.SessionStore
	syncService   *SyncService
	guard         *bypassGuard

	sessionDuration time.Duration
	normalizeRules  domain.NormalizeRules
	logger          *zap.Logger
	metricsRecorder ports.MetricsRecorder

	refreshCancel context.CancelFunc
}

// CaddyModule returns the Caddy module information.
func (WebServerAuth) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.webserver_auth",
		New: func() caddy.Module { return new(WebServerAuth) },
	}
}

// Provision sets up the module.
func (w *WebServerAuth) Provision(ctx caddy.Context) error {
	w.logger = ctx.Logger()
	w.logger.Debug("provisioning webserver auth handler")

	w.Config.SetDefaults()

	w.initMetricsRecorder()

	w.normalizeRules = domain.NormalizeRules{
		StripDomainPrefix: *w.StripDomainPrefix,
		StripAtSuffix:     *w.StripAtSuffix,
	}

	// Directory stores. Tests may inject their own before Provision.
	if w.userDirectory == nil && w.DirectoryFile != "" {
		dir := directory.NewFileDirectory(w.DirectoryFile, w.logger)
		if err := dir.Load(); err != nil {
			return fmt.Errorf("load directory file: %w", err)
		}
		w.userDirectory = dir
		w.mappingStore = dir
		w.roleStore = dir

		if w.DirectoryRefreshInterval != "0" {
			interval, err := time.ParseDuration(w.DirectoryRefreshInterval)
			if err != nil {
				return fmt.Errorf("parse directory refresh interval: %w", err)
			}
			refreshCtx, cancel := context.WithCancel(context.Background())
			w.refreshCancel = cancel
			go w.refreshDirectory(refreshCtx, dir, interval)
		}
	}
	if w.userDirectory == nil {
		inmem := directory.NewInMemoryDirectory()
		w.userDirectory = inmem
		w.mappingStore = inmem
		w.roleStore = inmem
		w.logger.Warn("no directory_file configured, starting with an empty in-memory directory")
	}

	// Session store and bypass guard share the signing key.
	if w.sessionStore == nil {
		privateKey, err := session.LoadPrivateKey(w.KeyFile)
		if err != nil {
			return fmt.Errorf("load session signing key: %w", err)
		}

		duration, err := time.ParseDuration(w.SessionDuration)
		if err != nil {
			return fmt.Errorf("parse session duration: %w", err)
		}
		w.sessionStore = session.NewCookieSessionStore(privateKey, duration)
		w.sessionDuration = duration

		if w.CacheBypass {
			w.guard = newBypassGuard(session.NewBypassCodec(privateKey),
				w.BypassCookieName, w.logger, w.metricsRecorder)
		}
	}

	roleMap, malformed := domain.ParseRoleMap(w.RoleMap)
	for _, entry := range malformed {
		w.logger.Warn("skipping malformed role_map entry", zap.String("entry", entry))
	}

	w.syncService = NewSyncService(w.userDirectory, w.mappingStore, w.roleStore,
		SyncFlags{
			CreateUser:    w.CreateUser,
			MatchExisting: w.MatchExisting,
			SkipCheck:     w.SkipCheck,
			LogoutOnEmpty: *w.LogoutOnEmpty,
		},
		roleMap, w.logger, w.metricsRecorder)
	w.syncService.SetEmailSync(w.SyncEmail, w.EmailDomain)

	w.logger.Info("webserver auth handler provisioned",
		zap.String("provider", domain.ProviderWebServerAuth),
		zap.Strings("identity_headers", w.IdentityHeaders),
		zap.Bool("create_user", w.CreateUser),
		zap.Bool("match_existing", w.MatchExisting),
		zap.Bool("cache_bypass", w.CacheBypass),
		zap.Int("role_map_entries", len(roleMap)))
	return nil
}

// Validate ensures the configuration is usable.
func (w *WebServerAuth) Validate() error {
	return w.Config.Validate()
}

// Cleanup stops the background directory refresh.
func (w *WebServerAuth) Cleanup() error {
	if w.refreshCancel != nil {
		w.refreshCancel()
	}
	return nil
}

// refreshDirectory reloads the directory seed file on an interval.
func (w *WebServerAuth) refreshDirectory(ctx context.Context, dir *directory.FileDirectory, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dir.Refresh(ctx); err != nil {
				w.logger.Warn("directory refresh failed", zap.Error(err))
			}
		}
	}
}

// ServeHTTP implements caddyhttp.MiddlewareHandler. It runs the
// reconciliation pipeline once per request: extract and normalize the
// asserted identity, compare it to the current session, apply the login or
// logout decision, then hand the request downstream with the resolved
// identity in context.
func (w *WebServerAuth) ServeHTTP(rw http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	attrs := extractAttributes(r, &w.Config)
	identity := domain.Normalize(attrs.RawName, w.normalizeRules, w.syncService.Alterers())

	// Current session, if the cookie checks out.
	var current *ports.SessionState
	hadCookie := false
	if cookie, err := r.Cookie(w.SessionCookieName); err == nil && cookie.Value != "" {
		hadCookie = true
		state, err := w.sessionStore.Get(cookie.Value)
		if err != nil {
			w.metricsRecorder.RecordSessionValidation(false)
		} else {
			w.metricsRecorder.RecordSessionValidation(true)
			current = state
		}
	}

	result := w.syncService.Reconcile(current, identity, attrs)

	if result.LoggedOut {
		w.clearSessionCookie(rw, r)
	}
	if result.LoggedIn {
		token, err := w.sessionStore.Create(result.State)
		if err != nil {
			// Session cookie failure degrades to anonymous; the login
			// decision itself never becomes a request error.
			w.logger.Error("session token creation failed", zap.Error(err))
			result = SyncResult{LoggedOut: result.LoggedOut}
		} else {
			w.setSessionCookie(rw, r, token)
		}
	}

	if w.guard != nil && !identity.Anonymous() {
		w.guard.markNonCacheable(rw)
		// A login on a request that arrived without a session is exactly
		// the case where a cache may still hold the anonymous rendering.
		if result.LoggedIn && !hadCookie && !w.guard.seenRecently(r, identity.CanonicalName) {
			if w.guard.forceReload(rw, r, identity.CanonicalName) {
				return nil
			}
		}
	}

	if *w.StripIdentityHeaders {
		stripIdentityHeaders(r, &w.Config)
	}

	if result.User != nil {
		ctx := context.WithValue(r.Context(), identityContextKey{}, &Identity{
			UserID:   result.User.ID,
			Username: result.User.Username,
			Authname: result.State.BoundAuthname,
			Email:    result.User.Email,
		})
		r = r.WithContext(ctx)

		if w.UserHeader != "" && w.UserHeader != "-" {
			r.Header.Set(w.UserHeader, sanitizeHeaderValue(result.User.Username))
		}
	}

	return next.ServeHTTP(rw, r)
}

// setSessionCookie sets the session cookie on the response.
func (w *WebServerAuth) setSessionCookie(rw http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(rw, &http.Cookie{
		Name:     w.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(w.sessionDuration.Seconds()),
	})
}

// clearSessionCookie deletes the session cookie.
func (w *WebServerAuth) clearSessionCookie(rw http.ResponseWriter, r *http.Request) {
	http.SetCookie(rw, &http.Cookie{
		Name:     w.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1, // Delete cookie
	})
}

func (w *WebServerAuth) initMetricsRecorder() {
	if w.metricsRecorder != nil {
		return
	}
	if w.MetricsEnabled {
		w.metricsRecorder = metrics.NewPrometheusMetricsRecorder()
	} else {
		w.metricsRecorder = metrics.NewNoopMetricsRecorder()
	}
}

// SetStores injects the directory stores. For testing purposes.
func (w *WebServerAuth) SetStores(users ports.UserDirectory, mappings ports.MappingStore, roles ports.RoleStore) {
	w.userDirectory = users
	w.mappingStore = mappings
	w.roleStore = roles
}

// SetSessionStore sets the session store. For testing purposes.
func (w *WebServerAuth) SetSessionStore(store ports.SessionStore) {
	w.sessionStore = store
}

// SetMetricsRecorder sets the metrics recorder. For testing purposes.
func (w *WebServerAuth) SetMetricsRecorder(rec ports.MetricsRecorder) {
	w.metricsRecorder = rec
}

// SyncService exposes the reconciliation service so callers can register
// authname alteration and provisioning hooks after Provision.
func (w *WebServerAuth) SyncService() *SyncService {
	return w.syncService
}

// Ensure interface guards
var (
	_ caddy.Provisioner           = (*WebServerAuth)(nil)
	_ caddy.Validator             = (*WebServerAuth)(nil)
	_ caddy.CleanerUpper          = (*WebServerAuth)(nil)
	_ caddyhttp.MiddlewareHandler = (*WebServerAuth)(nil)
)
