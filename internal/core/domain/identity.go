package domain

import (
	"strings"
)

// ExternalIdentity is the principal asserted by the upstream web server for a
// single request. It is recomputed on every request and never persisted.
type ExternalIdentity struct {
	// RawName is the principal exactly as asserted by the upstream server.
	RawName string

	// CanonicalName is the authname after normalization. Empty means the
	// request carries no identity assertion (anonymous).
	CanonicalName string
}

// Anonymous reports whether the identity carries no assertion.
func (id ExternalIdentity) Anonymous() bool {
	return id.CanonicalName == ""
}

// NormalizeRules controls which transforms Normalize applies.
// Each transform is independently toggleable.
type NormalizeRules struct {
	// StripDomainPrefix drops an NTLM-style path, keeping only the final
	// backslash-delimited segment: "DOMAIN\user" becomes "user".
	StripDomainPrefix bool

	// StripAtSuffix drops a UPN-style suffix, keeping only the portion
	// before the first "@": "user@example.com" becomes "user".
	StripAtSuffix bool
}

// AlterFunc rewrites an authname. Alteration hooks run after the built-in
// transforms and before the reconciler consumes the name; each receives the
// current name and returns the replacement.
type AlterFunc func(authname string) string

// Normalize derives the canonical authname from a raw asserted name.
// All transforms are total over strings: an empty input yields an empty
// canonical name and alteration hooks are skipped for it.
func Normalize(raw string, rules NormalizeRules, alters []AlterFunc) ExternalIdentity {
	name := raw
	if rules.StripDomainPrefix {
		if i := strings.LastIndexByte(name, '\\'); i >= 0 {
			name = name[i+1:]
		}
	}
	if rules.StripAtSuffix {
		if i := strings.IndexByte(name, '@'); i >= 0 {
			name = name[:i]
		}
	}
	if name != "" {
		for _, alter := range alters {
			name = alter(name)
		}
	}
	return ExternalIdentity{RawName: raw, CanonicalName: name}
}
