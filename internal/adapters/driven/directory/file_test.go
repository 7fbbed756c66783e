package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
)

const testDirectoryYAML = `
roles:
  - engineer
  - operator
users:
  - id: "42"
    username: jdoe
    email: jdoe@example.com
    status: active
  - id: "43"
    username: blocked-user
    status: blocked
mappings:
  - authname: jdoe
    user_id: "42"
user_roles:
  jdoe:
    - engineer
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestFileDirectory_LoadYAML(t *testing.T) {
	path := writeTempFile(t, "directory.yaml", testDirectoryYAML)
	d := NewFileDirectory(path, zaptest.NewLogger(t))
	if err := d.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	u, err := d.FindByUsername("jdoe")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if u.ID != "42" || u.Email != "jdoe@example.com" || !u.Active() {
		t.Errorf("unexpected user: %+v", u)
	}

	blocked, err := d.FindByUsername("blocked-user")
	if err != nil {
		t.Fatalf("FindByUsername(blocked-user): %v", err)
	}
	if blocked.Active() {
		t.Error("blocked-user should not be active")
	}

	// Mapping provider defaults to webserver_auth when omitted.
	m, err := d.FindMapping("jdoe", domain.ProviderWebServerAuth)
	if err != nil {
		t.Fatalf("FindMapping: %v", err)
	}
	if m.UserID != "42" {
		t.Errorf("mapping UserID = %q", m.UserID)
	}

	roles, err := d.ListRoleNamesForUser("42")
	if err != nil || len(roles) != 1 || roles[0] != "engineer" {
		t.Errorf("roles = %v, %v", roles, err)
	}
}

func TestFileDirectory_LoadJSON(t *testing.T) {
	path := writeTempFile(t, "directory.json", `{
		"roles": ["engineer"],
		"users": [{"id": "1", "username": "jdoe"}]
	}`)
	d := NewFileDirectory(path, zaptest.NewLogger(t))
	if err := d.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Status defaults to active when omitted.
	u, err := d.FindByUsername("jdoe")
	if err != nil || !u.Active() {
		t.Errorf("user = %+v, err = %v", u, err)
	}
}

func TestFileDirectory_RejectsInvalidStatus(t *testing.T) {
	path := writeTempFile(t, "directory.yaml", `
users:
  - id: "1"
    username: jdoe
    status: frozen
`)
	d := NewFileDirectory(path, zaptest.NewLogger(t))
	if err := d.Load(); err == nil {
		t.Error("Load should reject invalid status")
	}
}

func TestFileDirectory_RejectsMissingID(t *testing.T) {
	path := writeTempFile(t, "directory.yaml", `
users:
  - username: jdoe
`)
	d := NewFileDirectory(path, zaptest.NewLogger(t))
	if err := d.Load(); err == nil {
		t.Error("Load should reject a user without an id")
	}
}

// Refresh overlays the file onto the store: edits and additions land,
// removals do not take effect until restart.
func TestFileDirectory_RefreshOverlays(t *testing.T) {
	path := writeTempFile(t, "directory.yaml", `
users:
  - id: "1"
    username: bob
`)
	d := NewFileDirectory(path, zaptest.NewLogger(t))
	if err := d.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	// bob removed, alice added, and the file reloaded.
	if err := os.WriteFile(path, []byte(`
users:
  - id: "2"
    username: alice
`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := d.FindByUsername("alice"); err != nil {
		t.Errorf("added user not loaded: %v", err)
	}
	if _, err := d.FindByUsername("bob"); err != nil {
		t.Errorf("removed records stay until restart, bob should survive: %v", err)
	}
}

// A refresh never forgets accounts this module provisioned at runtime.
func TestFileDirectory_RefreshKeepsProvisionedUsers(t *testing.T) {
	path := writeTempFile(t, "directory.yaml", testDirectoryYAML)
	d := NewFileDirectory(path, zaptest.NewLogger(t))
	if err := d.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := d.Create(&domain.UserRecord{ID: "99", Username: "provisioned", Status: domain.UserActive}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := d.FindByUsername("provisioned"); err != nil {
		t.Errorf("provisioned user lost on refresh: %v", err)
	}
	if _, err := d.FindByUsername("jdoe"); err != nil {
		t.Errorf("seeded user lost on refresh: %v", err)
	}
}
