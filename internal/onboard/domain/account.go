package domain

import "time"

// Roles grantable through onboarding tokens.
const (
	RoleAdmin     = "ADMIN"
	RoleCounselor = "COUNSELOR"
	RoleStaff     = "STAFF"
)

// ValidRole reports whether role is one of the grantable roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleCounselor, RoleStaff:
		return true
	}
	return false
}

// Account is a tenant member. Its ID is deliberately the same identifier as
// the external identity it was created from, so the two systems stay joined
// without a mapping table.
type Account struct {
	ID        string
	TenantID  string
	Email     string
	Name      string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the account may issue, cancel, and resend
// invitations for its tenant.
func (a Account) IsAdmin() bool { return a.Role == RoleAdmin }
