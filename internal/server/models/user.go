// Package models defines the persistent rows for the admin authentication
// lifecycle.
package models

import "time"

// Admin roles form a closed set. The first two imply admin privileges.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleViewer     = "viewer"
)

// IsAdminRole reports whether the role grants access to the admin console.
func IsAdminRole(role string) bool {
	return role == RoleSuperAdmin || role == RoleAdmin
}

// User represents an administrative account. Password holds the bcrypt hash
// and is never serialized; the same goes for the TOTP secret.
type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Password         string     `json:"-"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	IsActive         bool       `json:"isActive"`
	IsAdmin          bool       `json:"isAdmin"`
	TwoFactorSecret  *string    `json:"-"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}
