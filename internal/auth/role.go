package auth

import "fmt"

// Role is the closed set of portal roles. Anything outside this set is
// rejected at parse time so authorization points can switch exhaustively.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleAgent      Role = "agent"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSuperadmin, RoleAdmin, RoleAgent:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ManagesAllBookings reports whether the role may view and mutate
// appointments booked by other accounts.
func (r Role) ManagesAllBookings() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin:
		return true
	case RoleAgent:
		return false
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
