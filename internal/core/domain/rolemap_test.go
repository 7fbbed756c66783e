package domain

import (
	"sort"
	"testing"
)

func TestParseRoleMap_Basic(t *testing.T) {
	m, malformed := ParseRoleMap("eng:engineer;sales:marketing")
	if len(malformed) != 0 {
		t.Fatalf("unexpected malformed entries: %v", malformed)
	}
	if m["eng"] != "engineer" || m["sales"] != "marketing" {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestParseRoleMap_SkipsMalformedEntries(t *testing.T) {
	m, malformed := ParseRoleMap("eng:engineer;nosep;:norole;nogroup:;ops : operator")
	if m["eng"] != "engineer" {
		t.Errorf("valid entry lost: %v", m)
	}
	if m["ops"] != "operator" {
		t.Errorf("whitespace should be trimmed: %v", m)
	}
	if len(malformed) != 3 {
		t.Errorf("malformed = %v, want 3 entries", malformed)
	}
	if len(m) != 2 {
		t.Errorf("map size = %d, want 2", len(m))
	}
}

func TestParseRoleMap_Empty(t *testing.T) {
	m, malformed := ParseRoleMap("")
	if len(m) != 0 || len(malformed) != 0 {
		t.Errorf("empty input should produce empty results, got %v / %v", m, malformed)
	}
}

func TestParseRoleMap_DuplicateGroupLastWins(t *testing.T) {
	m, _ := ParseRoleMap("eng:alpha;eng:beta")
	if m["eng"] != "beta" {
		t.Errorf(`m["eng"] = %q, want "beta"`, m["eng"])
	}
}

func TestDesiredRoles_IgnoresUnmappedGroups(t *testing.T) {
	m, _ := ParseRoleMap("eng:engineer")
	desired := m.DesiredRoles([]string{"eng", "unknown-group"})
	if len(desired) != 1 || !desired["engineer"] {
		t.Errorf("desired = %v, want {engineer}", desired)
	}
}

func TestRoleDiff_FullReplace(t *testing.T) {
	desired := map[string]bool{"engineer": true}
	toGrant, toRevoke := RoleDiff([]string{"engineer", "marketing"}, desired)
	if len(toGrant) != 0 {
		t.Errorf("toGrant = %v, want none (engineer already held)", toGrant)
	}
	if len(toRevoke) != 1 || toRevoke[0] != "marketing" {
		t.Errorf("toRevoke = %v, want [marketing]", toRevoke)
	}
}

func TestRoleDiff_GrantsMissing(t *testing.T) {
	desired := map[string]bool{"engineer": true, "operator": true}
	toGrant, toRevoke := RoleDiff([]string{"engineer"}, desired)
	sort.Strings(toGrant)
	if len(toGrant) != 1 || toGrant[0] != "operator" {
		t.Errorf("toGrant = %v, want [operator]", toGrant)
	}
	if len(toRevoke) != 0 {
		t.Errorf("toRevoke = %v, want none", toRevoke)
	}
}

// Running the diff against a state already matching desired yields zero
// operations.
func TestRoleDiff_Idempotent(t *testing.T) {
	desired := map[string]bool{"engineer": true, "operator": true}
	toGrant, toRevoke := RoleDiff([]string{"operator", "engineer"}, desired)
	if len(toGrant) != 0 || len(toRevoke) != 0 {
		t.Errorf("second run should be a no-op, got grant=%v revoke=%v", toGrant, toRevoke)
	}
}
