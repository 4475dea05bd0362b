package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles issued by the account system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// IsStaff reports whether the role may act on behalf of any student.
func (r UserRole) IsStaff() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleTeacher
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
