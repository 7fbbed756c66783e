package domain

import (
	"strings"
)

// RoleMap maps external group names to local role names. Parsed from the
// single delimited configuration string; used as a lookup set only, so
// duplicate pairs collapse (last occurrence wins).
type RoleMap map[string]string

// ParseRoleMap parses a delimited "extGroup:role;extGroup2:role2" string.
// Entries without a ":" separator are malformed; they are skipped and
// returned so the caller can log them. Surrounding whitespace on groups and
// roles is trimmed. An empty input yields an empty map.
func ParseRoleMap(s string) (RoleMap, []string) {
	m := make(RoleMap)
	var malformed []string
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		group, role, ok := strings.Cut(entry, ":")
		group = strings.TrimSpace(group)
		role = strings.TrimSpace(role)
		if !ok || group == "" || role == "" {
			malformed = append(malformed, entry)
			continue
		}
		m[group] = role
	}
	return m, malformed
}

// DesiredRoles returns the role names mapped from the asserted external
// groups. Groups without a mapping are ignored. The result is a set; the
// caller still filters out roles unknown to the role store.
func (m RoleMap) DesiredRoles(externalGroups []string) map[string]bool {
	desired := make(map[string]bool)
	for _, g := range externalGroups {
		if role, ok := m[g]; ok {
			desired[role] = true
		}
	}
	return desired
}

// RoleDiff computes the grant and revoke sets for full-replace semantics:
// every currently held role absent from desired is revoked, every desired
// role not currently held is granted. Order within each set is unspecified.
func RoleDiff(current []string, desired map[string]bool) (toGrant, toRevoke []string) {
	have := make(map[string]bool, len(current))
	for _, r := range current {
		have[r] = true
		if !desired[r] {
			toRevoke = append(toRevoke, r)
		}
	}
	for r := range desired {
		if !have[r] {
			toGrant = append(toGrant, r)
		}
	}
	return toGrant, toRevoke
}
