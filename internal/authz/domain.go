package authz

import "time"

// SuperAdminLevel is the conceptual rank of the super_admin type. It is a
// named constant on purpose: no role row is guaranteed to carry level 100,
// and inferring the top rank from data would make a future level-100 role an
// ambiguous peer of the super admin.
const SuperAdminLevel = 100

// SuperAdminRoleName identifies the one protected system role that only
// another super_admin may mutate, regardless of levels.
const SuperAdminRoleName = "Super Admin"

// UserType partitions accounts by trust class.
type UserType string

const (
	UserTypeSuperAdmin UserType = "super_admin"
	UserTypeAdmin      UserType = "admin"
	UserTypeTeam       UserType = "equipo"
	UserTypeClient     UserType = "cliente"
)

// Role is a named, leveled bucket of permissions.
type Role struct {
	ID       int64
	Name     string
	Level    int
	Color    string
	IsSystem bool
}

// Permission is an atomic dotted-code capability from the seeded catalog.
type Permission struct {
	ID           int64
	Code         string
	Module       string
	DisplayOrder int
}

// Override is the per-user exception state for a single permission.
// Inherit means "defer to role"; a stored row encodes Grant or Deny only.
type Override int

const (
	OverrideInherit Override = iota
	OverrideGrant
	OverrideDeny
)

// String returns the storage name of the override state.
func (o Override) String() string {
	switch o {
	case OverrideGrant:
		return "grant"
	case OverrideDeny:
		return "deny"
	default:
		return "inherit"
	}
}

// User is the identity-subsystem record as read by the authorization core.
type User struct {
	ID           int64
	Email        string
	Type         UserType
	RoleID       *int64
	Role         *Role
	Active       bool
	LastAccessAt time.Time
}

// IsSuperAdmin reports the permanent bypass.
func (u User) IsSuperAdmin() bool {
	return u.Type == UserTypeSuperAdmin
}

// EffectiveLevel is the rank used in hierarchy comparisons.
func (u User) EffectiveLevel() int {
	if u.IsSuperAdmin() {
		return SuperAdminLevel
	}
	if u.Role != nil {
		return u.Role.Level
	}
	return 0
}
