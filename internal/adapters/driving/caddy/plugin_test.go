package caddy

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	"github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driven/directory"
	"github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driven/metrics"
	"github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driven/session"
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/ports"
)

func sessionStateFor(userID, authname string) *ports.SessionState {
	return &ports.SessionState{UserID: userID, BoundAuthname: authname}
}

type testHandler struct {
	*WebServerAuth
	dir *directory.InMemoryDirectory
}

// newTestHandler wires a handler without going through caddy.Provision,
// which needs a real caddy.Context.
func newTestHandler(t *testing.T, mutate func(*Config)) *testHandler {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	w := &WebServerAuth{}
	w.Config = Config{KeyFile: "unused-in-tests.pem", CreateUser: false}
	w.Config.SetDefaults()
	if mutate != nil {
		mutate(&w.Config)
	}

	dir := directory.NewInMemoryDirectory()
	w.userDirectory = dir
	w.mappingStore = dir
	w.roleStore = dir

	w.logger = zap.NewNop()
	w.metricsRecorder = metrics.NewNoopMetricsRecorder()
	w.sessionStore = session.NewCookieSessionStore(key, time.Hour)
	w.sessionDuration = time.Hour
	w.normalizeRules = domain.NormalizeRules{
		StripDomainPrefix: *w.StripDomainPrefix,
		StripAtSuffix:     *w.StripAtSuffix,
	}
	if w.CacheBypass {
		w.guard = newBypassGuard(session.NewBypassCodec(key), w.BypassCookieName, w.logger, w.metricsRecorder)
	}

	roleMap, _ := domain.ParseRoleMap(w.RoleMap)
	w.syncService = NewSyncService(dir, dir, dir, SyncFlags{
		CreateUser:    w.CreateUser,
		MatchExisting: w.MatchExisting,
		SkipCheck:     w.SkipCheck,
		LogoutOnEmpty: *w.LogoutOnEmpty,
	}, roleMap, w.logger, w.metricsRecorder)
	w.syncService.SetEmailSync(w.SyncEmail, w.EmailDomain)

	return &testHandler{WebServerAuth: w, dir: dir}
}

func (h *testHandler) seedMappedUser(t *testing.T, id, username string) {
	t.Helper()
	if err := h.dir.Create(&domain.UserRecord{ID: id, Username: username, Status: domain.UserActive}); err != nil {
		t.Fatal(err)
	}
	err := h.dir.UpsertMapping(&domain.AccountMapping{
		Authname: username, Provider: domain.ProviderWebServerAuth, UserID: id,
	})
	if err != nil {
		t.Fatal(err)
	}
}

// serve runs one request through the handler, capturing what the downstream
// handler observed.
func (h *testHandler) serve(t *testing.T, r *http.Request) (*httptest.ResponseRecorder, *Identity, http.Header) {
	t.Helper()
	rec := httptest.NewRecorder()
	var seenIdentity *Identity
	var seenHeader http.Header
	next := caddyhttp.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) error {
		seenIdentity = GetIdentity(r)
		seenHeader = r.Header.Clone()
		rw.WriteHeader(http.StatusOK)
		return nil
	})
	if err := h.ServeHTTP(rec, r, next); err != nil {
		t.Fatalf("ServeHTTP: %v", err)
	}
	return rec, seenIdentity, seenHeader
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func TestServeHTTP_AnonymousPassThrough(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, identity, _ := h.serve(t, httptest.NewRequest("GET", "/page", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if identity != nil {
		t.Errorf("identity = %+v, want nil", identity)
	}
	if c := sessionCookie(t, rec, h.SessionCookieName); c != nil {
		t.Errorf("no session cookie expected, got %v", c)
	}
}

func TestServeHTTP_AssertedKnownUserLogsIn(t *testing.T) {
	h := newTestHandler(t, nil)
	h.seedMappedUser(t, "42", "jdoe")

	r := httptest.NewRequest("GET", "/page", nil)
	r.Header.Set("Remote-User", `DOMAIN\jdoe`)
	rec, identity, downstream := h.serve(t, r)

	if identity == nil || identity.UserID != "42" || identity.Authname != "jdoe" {
		t.Fatalf("identity = %+v, want user 42 bound to jdoe", identity)
	}

	c := sessionCookie(t, rec, h.SessionCookieName)
	if c == nil || c.Value == "" {
		t.Fatal("session cookie not issued")
	}
	state, err := h.sessionStore.Get(c.Value)
	if err != nil || state.UserID != "42" || state.BoundAuthname != "jdoe" {
		t.Errorf("cookie state = %+v, %v", state, err)
	}

	if downstream.Get("Remote-User") != "" {
		t.Error("identity header must be stripped before pass-through")
	}
	if downstream.Get("X-Auth-User") != "jdoe" {
		t.Errorf("X-Auth-User = %q, want jdoe", downstream.Get("X-Auth-User"))
	}
}

func TestServeHTTP_ValidSessionNoNewCookie(t *testing.T) {
	h := newTestHandler(t, nil)
	h.seedMappedUser(t, "42", "jdoe")

	token, err := h.sessionStore.Create(sessionStateFor("42", "jdoe"))
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/page", nil)
	r.Header.Set("Remote-User", "jdoe")
	r.AddCookie(&http.Cookie{Name: h.SessionCookieName, Value: token})

	rec, identity, _ := h.serve(t, r)
	if identity == nil || identity.UserID != "42" {
		t.Fatalf("identity = %+v", identity)
	}
	if c := sessionCookie(t, rec, h.SessionCookieName); c != nil {
		t.Error("matching session must not reissue the cookie")
	}
}

func TestServeHTTP_IdentityDriftReplacesSession(t *testing.T) {
	h := newTestHandler(t, nil)
	h.seedMappedUser(t, "1", "alice")
	h.seedMappedUser(t, "2", "bob")

	token, err := h.sessionStore.Create(sessionStateFor("1", "alice"))
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/page", nil)
	r.Header.Set("Remote-User", "bob")
	r.AddCookie(&http.Cookie{Name: h.SessionCookieName, Value: token})

	rec, identity, _ := h.serve(t, r)
	if identity == nil || identity.UserID != "2" {
		t.Fatalf("identity = %+v, want bob's account", identity)
	}

	// The last session cookie written must be bob's.
	c := sessionCookie(t, rec, h.SessionCookieName)
	if c == nil || c.Value == "" {
		t.Fatal("replacement session cookie missing")
	}
	state, err := h.sessionStore.Get(c.Value)
	if err != nil || state.BoundAuthname != "bob" {
		t.Errorf("cookie bound to %+v, want bob", state)
	}
}

func TestServeHTTP_LogoutOnEmptyClearsCookie(t *testing.T) {
	h := newTestHandler(t, nil)
	h.seedMappedUser(t, "42", "jdoe")

	token, err := h.sessionStore.Create(sessionStateFor("42", "jdoe"))
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("GET", "/page", nil)
	r.AddCookie(&http.Cookie{Name: h.SessionCookieName, Value: token})

	rec, identity, _ := h.serve(t, r)
	if identity != nil {
		t.Errorf("identity = %+v, want anonymous after logout", identity)
	}
	c := sessionCookie(t, rec, h.SessionCookieName)
	if c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("session cookie should be cleared, got %v", c)
	}
}

func TestServeHTTP_InvalidCookieTreatedAnonymous(t *testing.T) {
	h := newTestHandler(t, nil)
	h.seedMappedUser(t, "42", "jdoe")

	r := httptest.NewRequest("GET", "/page", nil)
	r.Header.Set("Remote-User", "jdoe")
	r.AddCookie(&http.Cookie{Name: h.SessionCookieName, Value: "garbage"})

	rec, identity, _ := h.serve(t, r)
	if identity == nil || identity.UserID != "42" {
		t.Fatalf("fresh login expected after invalid cookie, got %+v", identity)
	}
	if c := sessionCookie(t, rec, h.SessionCookieName); c == nil {
		t.Error("fresh session cookie expected")
	}
}

func TestServeHTTP_CacheBypassForcesReloadOnce(t *testing.T) {
	h := newTestHandler(t, func(c *Config) { c.CacheBypass = true })
	h.seedMappedUser(t, "42", "jdoe")

	// First request: login on a request that arrived without a session.
	r := httptest.NewRequest("GET", "/page?x=1", nil)
	r.Header.Set("Remote-User", "jdoe")
	rec := httptest.NewRecorder()
	next := caddyhttp.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) error {
		t.Error("downstream must not run on the forced-reload request")
		return nil
	})
	if err := h.ServeHTTP(rec, r, next); err != nil {
		t.Fatalf("ServeHTTP: %v", err)
	}

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/page?x=1" {
		t.Errorf("Location = %q, want same URL", loc)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "private, no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}

	seen := sessionCookie(t, rec, h.BypassCookieName)
	if seen == nil || seen.Value == "" {
		t.Fatal("bypass cookie not set")
	}
	sess := sessionCookie(t, rec, h.SessionCookieName)
	if sess == nil || sess.Value == "" {
		t.Fatal("session cookie must be established before the redirect")
	}

	// Replay with both cookies: no second redirect.
	r2 := httptest.NewRequest("GET", "/page?x=1", nil)
	r2.Header.Set("Remote-User", "jdoe")
	r2.AddCookie(&http.Cookie{Name: h.SessionCookieName, Value: sess.Value})
	r2.AddCookie(&http.Cookie{Name: h.BypassCookieName, Value: seen.Value})
	rec2, identity, _ := h.serve(t, r2)
	if rec2.Code != http.StatusOK {
		t.Errorf("replay status = %d, want 200", rec2.Code)
	}
	if identity == nil || identity.UserID != "42" {
		t.Errorf("replay identity = %+v", identity)
	}
}

func TestServeHTTP_CacheBypassSkipsPost(t *testing.T) {
	h := newTestHandler(t, func(c *Config) { c.CacheBypass = true })
	h.seedMappedUser(t, "42", "jdoe")

	r := httptest.NewRequest("POST", "/submit", nil)
	r.Header.Set("Remote-User", "jdoe")
	rec, identity, _ := h.serve(t, r)
	if rec.Code != http.StatusOK {
		t.Errorf("POST must never be redirected, status = %d", rec.Code)
	}
	if identity == nil {
		t.Error("login should still happen on POST")
	}
}
