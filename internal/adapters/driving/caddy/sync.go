package caddy

import (
	"errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/ports"
)

// SyncFlags are the reconciler's decision toggles.
type SyncFlags struct {
	// CreateUser enables provisioning brand-new accounts.
	CreateUser bool

	// MatchExisting enables auto-mapping to an existing account with a
	// matching username.
	MatchExisting bool

	// SkipCheck resolves purely by username equality, ignoring mappings.
	SkipCheck bool

	// LogoutOnEmpty ends an authenticated session when the request carries
	// no identity assertion.
	LogoutOnEmpty bool
}

// SyncResult reports what the reconciler decided for one request.
type SyncResult struct {
	// State is the session state after reconciliation; nil means anonymous.
	State *ports.SessionState

	// LoggedOut is true when an existing session was terminated, so the
	// caller must clear the session cookie.
	LoggedOut bool

	// LoggedIn is true when a login happened on this request, so the caller
	// must issue a fresh session cookie.
	LoggedIn bool

	// User is the resolved local account on successful login, for context
	// exposure and header injection. Nil otherwise.
	User *domain.UserRecord
}

// SyncService reconciles the upstream-asserted external identity with the
// local account state, once per request. It owns the login decision
// procedure and the post-login attribute and role synchronization. All
// directory failures are absorbed here; the worst outcome any of them can
// produce is an anonymous request.
type SyncService struct {
	users    ports.UserDirectory
	mappings ports.MappingStore
	roles    ports.RoleStore
	metrics  ports.MetricsRecorder
	logger   *zap.Logger

	flags       SyncFlags
	syncEmail   bool
	emailDomain string
	roleMap     domain.RoleMap
	alters      []domain.AlterFunc
	hooks       []ports.ProvisionHook

	newID func() string
}

// NewSyncService creates the reconciliation service. roleMap may be nil to
// disable role synchronization.
func NewSyncService(users ports.UserDirectory, mappings ports.MappingStore, roles ports.RoleStore,
	flags SyncFlags, roleMap domain.RoleMap, logger *zap.Logger, metrics ports.MetricsRecorder) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		users:    users,
		mappings: mappings,
		roles:    roles,
		metrics:  metrics,
		logger:   logger,
		flags:    flags,
		roleMap:  roleMap,
		newID:    func() string { return ulid.Make().String() },
	}
}

// SetEmailSync configures post-login email synchronization and the domain
// used to synthesize emails for provisioned accounts.
func (s *SyncService) SetEmailSync(enabled bool, emailDomain string) {
	s.syncEmail = enabled
	s.emailDomain = emailDomain
}

// RegisterAlterer appends an authname rewrite hook. Hooks run in
// registration order before the reconciler consumes the name.
func (s *SyncService) RegisterAlterer(f domain.AlterFunc) {
	s.alters = append(s.alters, f)
}

// RegisterProvisionHook appends a hook invoked after account provisioning.
func (s *SyncService) RegisterProvisionHook(h ports.ProvisionHook) {
	s.hooks = append(s.hooks, h)
}

// Alterers returns the registered authname rewrite chain.
func (s *SyncService) Alterers() []domain.AlterFunc {
	return s.alters
}

// Reconcile runs the per-request decision procedure. current is the session
// carried by the request cookie (nil for anonymous); identity is the
// normalized external identity; attrs are the trusted request attributes.
//
// A stale session (bound authname differing from the asserted one) is logged
// out and the new identity logged in within this single call, so no
// intermediate state is ever observable by the caller.
func (s *SyncService) Reconcile(current *ports.SessionState, identity domain.ExternalIdentity, attrs RequestAttributes) SyncResult {
	authname := identity.CanonicalName

	// No assertion on this request.
	if authname == "" {
		if current != nil && s.flags.LogoutOnEmpty {
			s.logger.Debug("logging out session with no identity assertion",
				zap.String("bound_authname", current.BoundAuthname))
			return SyncResult{LoggedOut: true}
		}
		return SyncResult{State: current}
	}

	result := SyncResult{}

	if current != nil {
		if current.BoundAuthname == authname {
			// Already correctly authenticated. The account is still loaded
			// on every request so downstream handlers see the identity, and
			// so a block or deletion since login ends the session.
			user, err := s.users.FindByID(current.UserID)
			if err != nil || !user.Active() {
				s.logger.Info("ending session for unavailable account",
					zap.String("authname", authname),
					zap.String("user_id", current.UserID),
					zap.Error(err))
				return SyncResult{LoggedOut: true}
			}
			return SyncResult{State: current, User: user}
		}
		// Identity drift: end the stale session, then fall through to a
		// fresh login attempt for the new name.
		s.logger.Info("asserted identity changed, ending stale session",
			zap.String("bound_authname", current.BoundAuthname),
			zap.String("authname", authname))
		result.LoggedOut = true
	}

	user, err := s.resolve(authname)
	switch {
	case err == nil:
		return s.completeLogin(result, user, authname, attrs)

	case isBlocked(err):
		s.logger.Warn("login refused for blocked account", zap.String("authname", authname))
		s.metrics.RecordLoginAttempt("blocked")
		return result

	case !errors.Is(err, ports.ErrUserNotFound):
		s.logger.Error("account resolution failed", zap.String("authname", authname), zap.Error(err))
		s.metrics.RecordLoginAttempt("error")
		return result
	}

	// No mapping. Is there an unmapped local account with this username?
	existing, err := s.findUnmappedExistingAccount(authname)
	if err == nil {
		if !s.flags.MatchExisting {
			s.logger.Warn("local account exists but auto-matching is disabled, manual mapping required",
				zap.String("authname", authname),
				zap.Error(domain.MappingConflictError(authname)))
			s.metrics.RecordLoginAttempt("conflict")
			return result
		}

		if err := s.createMapping(existing.ID, authname); err != nil {
			s.logger.Error("mapping creation failed", zap.String("authname", authname), zap.Error(err))
			s.metrics.RecordLoginAttempt("error")
			return result
		}

		// Retry resolution once; bounded so a racing mapping change cannot
		// loop the handler.
		user, err := s.resolve(authname)
		if err != nil {
			if isBlocked(err) {
				s.logger.Warn("login refused for blocked account", zap.String("authname", authname))
				s.metrics.RecordLoginAttempt("blocked")
			} else {
				s.logger.Error("resolution retry after mapping failed",
					zap.String("authname", authname), zap.Error(err))
				s.metrics.RecordLoginAttempt("error")
			}
			return result
		}
		return s.completeLogin(result, user, authname, attrs)
	}
	if !errors.Is(err, ports.ErrUserNotFound) {
		s.logger.Error("username lookup failed", zap.String("authname", authname), zap.Error(err))
		s.metrics.RecordLoginAttempt("error")
		return result
	}

	if !s.flags.CreateUser {
		s.logger.Warn("unknown user, account creation disabled",
			zap.String("authname", authname),
			zap.Error(domain.CreationDisabledError(authname)))
		s.metrics.RecordLoginAttempt("creation_disabled")
		return result
	}

	user, err = s.provisionAccount(authname, attrs)
	if err != nil {
		// Likely the loser of a concurrent provisioning race. Retry
		// resolution once; the winner's account may now be mapped.
		s.logger.Warn("account provisioning failed, retrying resolution",
			zap.String("authname", authname),
			zap.String("code", domain.ErrCodePersistence.String()),
			zap.Error(err))
		user, err = s.resolve(authname)
		if err != nil {
			s.metrics.RecordLoginAttempt("error")
			return result
		}
	}
	return s.completeLogin(result, user, authname, attrs)
}

// completeLogin binds the session to the resolved account and runs the
// post-login attribute and role synchronization.
func (s *SyncService) completeLogin(result SyncResult, user *domain.UserRecord, authname string, attrs RequestAttributes) SyncResult {
	s.syncAttributes(user, attrs)

	result.LoggedIn = true
	result.User = user
	result.State = &ports.SessionState{UserID: user.ID, BoundAuthname: authname}

	s.logger.Debug("login",
		zap.String("authname", authname),
		zap.String("user_id", user.ID),
		zap.String("username", user.Username))
	s.metrics.RecordLoginAttempt("success")
	return result
}

// resolve maps a canonical authname to an active local account.
// Returns ports.ErrUserNotFound when nothing matches, and a blocked AppError
// when the account exists but may not log in.
func (s *SyncService) resolve(authname string) (*domain.UserRecord, error) {
	var user *domain.UserRecord
	var err error

	if s.flags.SkipCheck {
		user, err = s.users.FindByUsername(authname)
		if err != nil {
			return nil, err
		}
	} else {
		mapping, err := s.mappings.FindMapping(authname, domain.ProviderWebServerAuth)
		if errors.Is(err, ports.ErrMappingNotFound) {
			return nil, ports.ErrUserNotFound
		}
		if err != nil {
			return nil, err
		}
		user, err = s.users.FindByID(mapping.UserID)
		if err != nil {
			return nil, err
		}
	}

	if !user.Active() {
		return nil, domain.BlockedError(authname)
	}
	return user, nil
}

// findUnmappedExistingAccount looks up a local account by username
// regardless of mapping state. Blocked accounts count as found so the
// caller does not provision a duplicate for them.
func (s *SyncService) findUnmappedExistingAccount(authname string) (*domain.UserRecord, error) {
	return s.users.FindByUsername(authname)
}

// createMapping records an authname-to-user mapping. Idempotent upsert.
func (s *SyncService) createMapping(userID, authname string) error {
	return s.mappings.UpsertMapping(&domain.AccountMapping{
		Authname: authname,
		Provider: domain.ProviderWebServerAuth,
		UserID:   userID,
	})
}

// provisionAccount creates a brand-new local account for an authname with no
// prior local presence and records its mapping. Storage failures come back
// as persistence AppErrors; the caller decides the degraded path.
func (s *SyncService) provisionAccount(authname string, attrs RequestAttributes) (*domain.UserRecord, error) {
	email := attrs.Email
	if email == "" && s.emailDomain != "" {
		email = authname + "@" + s.emailDomain
	}

	user := &domain.UserRecord{
		ID:       s.newID(),
		Username: authname,
		Email:    email,
		Status:   domain.UserActive,
	}

	if err := s.users.Create(user); err != nil {
		return nil, domain.PersistenceError("account creation", err)
	}
	if err := s.createMapping(user.ID, authname); err != nil {
		return nil, domain.PersistenceError("mapping creation", err)
	}

	s.logger.Info("provisioned local account for external identity",
		zap.String("authname", authname),
		zap.String("user_id", user.ID),
		zap.String("email", email))
	s.metrics.RecordAccountProvisioned()

	for _, h := range s.hooks {
		if err := h.OnAccountProvisioned(user); err != nil {
			s.logger.Warn("provision hook failed",
				zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user, nil
}

// syncAttributes runs the post-login email and role synchronization.
// Individual store failures are logged and skipped; they never abort the
// remaining steps or the login itself.
func (s *SyncService) syncAttributes(user *domain.UserRecord, attrs RequestAttributes) {
	if s.syncEmail && attrs.Email != "" && attrs.Email != user.Email {
		if err := s.users.UpdateEmail(user.ID, attrs.Email); err != nil {
			s.logger.Warn("email update failed",
				zap.String("user_id", user.ID), zap.Error(err))
		} else {
			user.Email = attrs.Email
		}
	}

	if len(s.roleMap) > 0 {
		s.syncRoles(user.ID, attrs.Groups)
	}
}

// syncRoles applies full-replace role semantics: roles absent from the
// asserted external groups are revoked, newly asserted ones granted.
// Revocations run before grants. Unknown role names are dropped, never
// auto-created. The whole computation is idempotent, so a crash mid-sync is
// repaired by the next login.
func (s *SyncService) syncRoles(userID string, externalGroups []string) {
	desired := s.roleMap.DesiredRoles(externalGroups)
	for role := range desired {
		known, err := s.roles.RoleExists(role)
		if err != nil {
			s.logger.Warn("role existence check failed", zap.String("role", role), zap.Error(err))
			delete(desired, role)
			continue
		}
		if !known {
			s.logger.Debug("dropping unknown role from sync", zap.String("role", role))
			delete(desired, role)
		}
	}

	current, err := s.roles.ListRoleNamesForUser(userID)
	if err != nil {
		s.logger.Warn("listing current roles failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	toGrant, toRevoke := domain.RoleDiff(current, desired)

	granted, revoked := 0, 0
	for _, role := range toRevoke {
		if err := s.roles.RevokeRole(userID, role); err != nil {
			s.logger.Warn("role revoke failed",
				zap.String("user_id", userID), zap.String("role", role), zap.Error(err))
			continue
		}
		revoked++
	}
	for _, role := range toGrant {
		if err := s.roles.GrantRole(userID, role); err != nil {
			s.logger.Warn("role grant failed",
				zap.String("user_id", userID), zap.String("role", role), zap.Error(err))
			continue
		}
		granted++
	}

	if granted > 0 || revoked > 0 {
		s.logger.Debug("role sync applied",
			zap.String("user_id", userID),
			zap.Int("granted", granted),
			zap.Int("revoked", revoked))
	}
	s.metrics.RecordRoleSync(granted, revoked)
}

func isBlocked(err error) bool {
	var appErr *domain.AppError
	return errors.As(err, &appErr) && appErr.Code == domain.ErrCodeUserBlocked
}
