package domain

import "strings"

type Role string

const (
	RoleMember Role = "member"
	RoleVIP    Role = "vip"
	RoleAdmin  Role = "admin"
)

// Elevated reports whether the role may see VIP-tagged endpoints and the
// dynamically refreshed server list.
func (r Role) Elevated() bool {
	return r == RoleVIP || r == RoleAdmin
}

// Session carries the caller's identity and session-scoped choices. It is
// threaded explicitly into the executor and resolver instead of being read
// from ambient global state; SelectedServer is empty when the user never
// picked one, in which case the per-service default applies.
type Session struct {
	UserID         string
	Username       string
	Role           Role
	SelectedServer string
}

func (s Session) UsernameOrUnknown() string {
	if strings.TrimSpace(s.Username) == "" {
		return "unknown"
	}
	return s.Username
}

// Profile is the durable user record. PersonalAuthToken may be empty until
// the user configures one or claims a pool token.
type Profile struct {
	ID                string
	Username          string
	Role              Role
	PersonalAuthToken string
}
