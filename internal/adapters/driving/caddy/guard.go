package caddy

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/RichardKalinec/webserver-auth-extended/internal/adapters/driven/session"
	"github.com/RichardKalinec/webserver-auth-extended/internal/core/ports"
)

// bypassGuard keeps a page cache from serving previously rendered anonymous
// content to a freshly authenticated principal. When an identity assertion
// arrives on a request with no session, the guard marks the response
// non-cacheable and, once the reconciler has established the session, forces
// one reload of the same URL so the user sees authenticated content. A
// short-lived cookie keyed by the authname stops the forced reload from
// repeating.
type bypassGuard struct {
	codec      *session.BypassCodec
	cookieName string
	logger     *zap.Logger
	metrics    ports.MetricsRecorder
}

func newBypassGuard(codec *session.BypassCodec, cookieName string, logger *zap.Logger, metrics ports.MetricsRecorder) *bypassGuard {
	return &bypassGuard{
		codec:      codec,
		cookieName: cookieName,
		logger:     logger,
		metrics:    metrics,
	}
}

// markNonCacheable flags the response so shared caches never store content
// rendered for an authenticated principal.
func (g *bypassGuard) markNonCacheable(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "private, no-store")
}

// seenRecently reports whether a live bypass cookie for authname is attached,
// meaning a forced reload already happened within the token's lifetime.
func (g *bypassGuard) seenRecently(r *http.Request, authname string) bool {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	return g.codec.Valid(cookie.Value, authname)
}

// forceReload sets the bypass cookie and redirects to the same URL so the
// now-authenticated session renders fresh content. GET/HEAD only; other
// methods carry bodies a redirect would drop.
func (g *bypassGuard) forceReload(w http.ResponseWriter, r *http.Request, authname string) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	token, err := g.codec.Mint(authname)
	if err != nil {
		g.logger.Warn("minting bypass token failed", zap.Error(err))
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(session.BypassTokenTTL.Seconds()),
	})

	g.logger.Debug("forcing reload to bypass cached anonymous content",
		zap.String("authname", authname),
		zap.String("url", r.URL.RequestURI()))
	g.metrics.RecordCacheBypass()

	http.Redirect(w, r, r.URL.RequestURI(), http.StatusFound)
	return true
}
