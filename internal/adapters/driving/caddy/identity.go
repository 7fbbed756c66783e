package caddy

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"
)

// MaxHeaderValueLength is the maximum length accepted for trusted header values.
const MaxHeaderValueLength = 8192

// maxGroupCount bounds the indexed group enumeration so a bad upstream count
// cannot make the handler loop over thousands of absent headers.
const maxGroupCount = 256

// RequestAttributes are the trusted values the upstream server asserted on a
// single request: the raw principal, an optional email, and the enumerated
// external groups.
type RequestAttributes struct {
	RawName string
	Email   string
	Groups  []string
}

// extractAttributes reads the trusted request attributes per the configured
// header names. The first non-empty identity header wins. Group headers are
// indexed "<prefix>1".."<prefix>N" with N from the count header; absent
// entries are skipped.
func extractAttributes(r *http.Request, cfg *Config) RequestAttributes {
	var attrs RequestAttributes

	for _, h := range cfg.IdentityHeaders {
		if v := sanitizeHeaderValue(r.Header.Get(h)); v != "" {
			attrs.RawName = v
			break
		}
	}

	if cfg.EmailHeader != "" {
		attrs.Email = sanitizeHeaderValue(r.Header.Get(cfg.EmailHeader))
	}

	if cfg.GroupsCountHeader != "" {
		count, err := strconv.Atoi(strings.TrimSpace(r.Header.Get(cfg.GroupsCountHeader)))
		if err == nil && count > 0 {
			if count > maxGroupCount {
				count = maxGroupCount
			}
			for i := 1; i <= count; i++ {
				name := cfg.GroupHeaderPrefix + strconv.Itoa(i)
				if v := sanitizeHeaderValue(r.Header.Get(name)); v != "" {
					attrs.Groups = append(attrs.Groups, v)
				}
			}
		}
	}

	return attrs
}

// stripIdentityHeaders removes the configured trusted headers from the
// request before it is passed downstream, so a client cannot smuggle them
// past this handler.
func stripIdentityHeaders(r *http.Request, cfg *Config) {
	for _, h := range cfg.IdentityHeaders {
		r.Header.Del(h)
	}
	if cfg.EmailHeader != "" {
		r.Header.Del(cfg.EmailHeader)
	}
	if cfg.GroupsCountHeader != "" {
		r.Header.Del(cfg.GroupsCountHeader)
		for i := 1; i <= maxGroupCount; i++ {
			name := cfg.GroupHeaderPrefix + strconv.Itoa(i)
			if r.Header.Get(name) == "" {
				break
			}
			r.Header.Del(name)
		}
	}
	if cfg.UserHeader != "" && cfg.UserHeader != "-" {
		r.Header.Del(cfg.UserHeader)
	}
}

// sanitizeHeaderValue removes dangerous characters and enforces length limits.
func sanitizeHeaderValue(v string) string {
	if v == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(min(len(v), MaxHeaderValueLength))

	for _, r := range v {
		// Skip control characters (including CR, LF, null)
		if r < 32 || r == 127 {
			continue
		}

		// Skip Unicode line/paragraph separators
		if r == '\u2028' || r == '\u2029' {
			continue
		}

		// Skip problematic Unicode characters
		if unicode.Is(unicode.Cf, r) { // Format characters (includes BOM, RTL override, etc.)
			continue
		}

		result.WriteRune(r)

		// Enforce length limit
		if result.Len() >= MaxHeaderValueLength {
			break
		}
	}

	return strings.TrimSpace(result.String())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
