package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/RichardKalinec/webserver-auth-extended/internal/core/domain"
)

// FileDirectory is an InMemoryDirectory seeded from a local JSON or YAML
// file. Refresh overlays the file's records onto the store: additions and
// edits take effect, runtime-provisioned accounts are untouched, and records
// removed from the file remain in memory until restart.
type FileDirectory struct {
	*InMemoryDirectory

	path   string
	logger *zap.Logger
}

// DirectoryFile represents the structure of the directory seed file.
type DirectoryFile struct {
	Users    []domain.UserRecord     `json:"users" yaml:"users"`
	Roles    []string                `json:"roles" yaml:"roles"`
	Mappings []domain.AccountMapping `json:"mappings" yaml:"mappings"`
	// UserRoles maps a username to its assigned role names.
	UserRoles map[string][]string `json:"user_roles" yaml:"user_roles"`
}

// NewFileDirectory creates a new file-seeded directory.
func NewFileDirectory(path string, logger *zap.Logger) *FileDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileDirectory{
		InMemoryDirectory: NewInMemoryDirectory(),
		path:              path,
		logger:            logger,
	}
}

// Load reads the seed file for the first time.
func (d *FileDirectory) Load() error {
	return d.Refresh(context.Background())
}

// Refresh reloads the seed file and overlays its records onto the store.
// Nothing is removed: runtime-provisioned users and mappings survive, and so
// do records deleted from the file.
func (d *FileDirectory) Refresh(ctx context.Context) error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read directory file: %w", err)
	}

	var file DirectoryFile
	ext := strings.ToLower(filepath.Ext(d.path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse YAML directory file: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse JSON directory file: %w", err)
		}
	}

	for i := range file.Users {
		u := &file.Users[i]
		if u.Username == "" || u.ID == "" {
			return fmt.Errorf("directory file: user %d must have id and username", i)
		}
		if u.Status == "" {
			u.Status = domain.UserActive
		}
		if u.Status != domain.UserActive && u.Status != domain.UserBlocked {
			return fmt.Errorf("directory file: user %q has invalid status %q", u.Username, u.Status)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range file.Roles {
		d.roles[name] = true
	}

	byUsername := make(map[string]string, len(file.Users))
	for i := range file.Users {
		u := file.Users[i]
		d.byID[u.ID] = &u
		d.byUsername[u.Username] = u.ID
		byUsername[u.Username] = u.ID
	}

	for _, m := range file.Mappings {
		provider := m.Provider
		if provider == "" {
			provider = domain.ProviderWebServerAuth
		}
		byAuthname, ok := d.mappings[provider]
		if !ok {
			byAuthname = make(map[string]string)
			d.mappings[provider] = byAuthname
		}
		byAuthname[m.Authname] = m.UserID
	}

	for username, roleNames := range file.UserRoles {
		uid, ok := byUsername[username]
		if !ok {
			d.logger.Warn("directory file assigns roles to unknown user",
				zap.String("username", username))
			continue
		}
		set := make(map[string]bool, len(roleNames))
		for _, name := range roleNames {
			if !d.roles[name] {
				d.logger.Warn("directory file assigns unknown role",
					zap.String("username", username),
					zap.String("role", name))
				continue
			}
			set[name] = true
		}
		d.userRoles[uid] = set
	}

	d.logger.Debug("directory file loaded",
		zap.String("path", d.path),
		zap.Int("users", len(file.Users)),
		zap.Int("roles", len(file.Roles)),
		zap.Int("mappings", len(file.Mappings)))

	return nil
}
