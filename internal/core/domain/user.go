package domain

// ProviderWebServerAuth is the provider key under which this module records
// account mappings. One authname maps to at most one user per provider; a user
// may hold mappings from several providers.
const ProviderWebServerAuth = "webserver_auth"

// UserStatus is the lifecycle state of a local account.
type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
)

// UserRecord is a local account as seen through the directory abstraction.
// The directory owns the record; this module only creates accounts and
// updates email.
type UserRecord struct {
	ID       string     `json:"id" yaml:"id"`
	Username string     `json:"username" yaml:"username"`
	Email    string     `json:"email,omitempty" yaml:"email,omitempty"`
	Status   UserStatus `json:"status" yaml:"status"`
}

// Active reports whether the account may log in.
func (u *UserRecord) Active() bool {
	return u.Status == UserActive
}

// AccountMapping is the persistent association between an external authname
// and a local user for a given provider.
type AccountMapping struct {
	Authname string `json:"authname" yaml:"authname"`
	Provider string `json:"provider" yaml:"provider"`
	UserID   string `json:"user_id" yaml:"user_id"`
}
